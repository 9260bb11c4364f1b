package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/syncbook/internal/config"
	"github.com/hitoshi/syncbook/internal/database"
	"github.com/hitoshi/syncbook/internal/logger"
	"github.com/hitoshi/syncbook/internal/model"
)

// Init はアプリケーションの初期化を行う。
// .envを読み込んだ後に環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルと環境変数から設定を読み込む
	if err := config.LoadDotEnv(""); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("remote_base_url", cfg.RemoteBaseURL),
	)

	// SIGINTまたはSIGTERMシグナルでコンテキストをキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、定期同期ワークを登録してからHTTPサーバーを起動する。
// SQLiteは単一プロセスからの書き込みを前提とするため、同じプロセスでスケジューラも実行する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := newComponents(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.enqueueWork(ctx); err != nil {
		return err
	}

	srv := c.newServer(ctx)

	if cfg.DatabaseDriver == config.DriverSQLite {
		go c.scheduler.Start(ctx, cfg.SyncPollInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", srv.server.Addr))
		if err := srv.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			srv.close()
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	srv.close()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 定期同期ワークを登録し、スケジューラをメインgoroutineで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	c, err := newComponents(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.enqueueWork(ctx); err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.Duration("poll_interval", cfg.SyncPollInterval),
		slog.String("sync_schedule", cfg.SyncSchedule),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(ctx, cfg.SyncPollInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLではすべての未適用マイグレーションを順番に適用し、
// SQLiteではモデル定義に合わせてスキーマを作成する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if cfg.DatabaseDriver == config.DriverSQLite {
		db, err := database.OpenSQLite(cfg.DatabaseURL, logger.WithComponent(slog.Default(), "database"))
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := database.AutoMigrateSQLite(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// withUserID はPUTのパスで指定されたIDをユーザーに設定する。
func withUserID(u model.User, id int64) model.User {
	u.ID = id
	return u
}

// withNoteID はPUTのパスで指定されたIDをメモに設定する。
func withNoteID(n model.Note, id int64) model.Note {
	n.ID = id
	return n
}
