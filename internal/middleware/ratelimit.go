package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hitoshi/syncbook/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Rate         rate.Limit    // クライアントごとのレート（req/sec）。120/60 = 2 req/sec
	Burst        int           // バーストサイズ
	CacheSize    int           // 保持するクライアント数の上限
	TTL          time.Duration // 最終アクセスからリミッターを破棄するまでの時間
	TrustHeaders bool          // X-Forwarded-For / X-Real-Ip を信頼するか
}

// DefaultRateLimiterConfig はperMinute req/minのレート制限設定を返す。
// perMinuteが0以下の場合は120を使用する。
func DefaultRateLimiterConfig(perMinute int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = 120
	}
	return RateLimiterConfig{
		Rate:      rate.Limit(float64(perMinute) / 60.0),
		Burst:     perMinute,
		CacheSize: 10000,
		TTL:       10 * time.Minute,
	}
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// リミッターは期限付きLRUで保持し、一定時間アクセスのないクライアントは自動的に破棄される。
type RateLimiter struct {
	config   RateLimiterConfig
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	logger   *slog.Logger
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if config.CacheSize <= 0 {
		config.CacheSize = 10000
	}
	return &RateLimiter{
		config:   config,
		limiters: expirable.NewLRU[string, *rate.Limiter](config.CacheSize, nil, config.TTL),
		logger:   logger,
	}
}

// Middleware はレート制限ミドルウェアを返す。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := rl.clientKey(r)
			limiter := rl.limiter(client)

			if !limiter.Allow() {
				writeRateLimitResponse(w, r, rl.config.Rate)
				rl.logger.Warn("rate limit exceeded",
					slog.String("client", client),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientCount は現在管理されているリミッターのエントリ数を返す。
func (rl *RateLimiter) clientCount() int {
	return rl.limiters.Len()
}

func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	if l, ok := rl.limiters.Get(client); ok {
		return l
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if l, ok := rl.limiters.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters.Add(client, l)
	return l
}

func (rl *RateLimiter) clientKey(r *http.Request) string {
	if rl.config.TrustHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには1トークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r *http.Request, limit rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, r, http.StatusTooManyRequests, &model.APIError{
		Code:     ErrCodeRateLimit,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterに示された秒数の経過後に再度お試しください。",
	})
}
