package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ローカルストアのドライバ名
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string

	// Remote
	RemoteBaseURL              string
	RemoteTimeout              time.Duration
	RemoteMaxRetries           int
	RemoteRateLimit            float64
	RemoteBlockPrivateNetworks bool

	// Sync
	SyncPollInterval    time.Duration
	SyncSchedule        string
	SyncMaxConcurrent   int
	SyncRequiresNetwork bool

	// Cleanup
	WorkRetentionDays int

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envファイルが存在すれば環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.RemoteBaseURL = strings.TrimRight(os.Getenv("REMOTE_BASE_URL"), "/")
	if cfg.RemoteBaseURL == "" {
		missing = append(missing, "REMOTE_BASE_URL")
	}

	cfg.DatabaseDriver = strings.ToLower(getEnvString("DATABASE_DRIVER", DriverSQLite))
	switch cfg.DatabaseDriver {
	case DriverSQLite:
		cfg.DatabaseURL = getEnvString("DATABASE_URL", "file:syncbook.db")
	case DriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER: %q (allowed: %s, %s)", cfg.DatabaseDriver, DriverSQLite, DriverPostgres)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", 10*time.Second)
	cfg.RemoteMaxRetries = getEnvInt("REMOTE_MAX_RETRIES", 2)
	cfg.RemoteRateLimit = getEnvFloat("REMOTE_RATE_LIMIT", 10)
	cfg.RemoteBlockPrivateNetworks = getEnvBool("REMOTE_BLOCK_PRIVATE_NETWORKS", false)
	cfg.SyncPollInterval = getEnvDuration("SYNC_POLL_INTERVAL", time.Minute)
	cfg.SyncSchedule = getEnvString("SYNC_SCHEDULE", "@every 15m")
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.SyncRequiresNetwork = getEnvBool("SYNC_REQUIRES_NETWORK", true)
	cfg.WorkRetentionDays = getEnvInt("WORK_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
