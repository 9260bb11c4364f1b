package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/syncbook/internal/config"
	"github.com/hitoshi/syncbook/internal/database"
	"github.com/hitoshi/syncbook/internal/handler"
	"github.com/hitoshi/syncbook/internal/logger"
	"github.com/hitoshi/syncbook/internal/metrics"
	"github.com/hitoshi/syncbook/internal/middleware"
	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/records"
	"github.com/hitoshi/syncbook/internal/remote"
	"github.com/hitoshi/syncbook/internal/repository"
	"github.com/hitoshi/syncbook/internal/security"
	"github.com/hitoshi/syncbook/internal/viewmodel"
	"github.com/hitoshi/syncbook/internal/worker/cleanup"
	"github.com/hitoshi/syncbook/internal/worker/syncwork"
)

// 定期実行ワーク名
const (
	WorkSyncUsers = "sync-users"
	WorkSyncNotes = "sync-notes"
	WorkCleanup   = "cleanup-work-requests"
)

// localStores はドライバごとに生成したローカルストア。
type localStores struct {
	users  repository.UserStore
	notes  repository.NoteStore
	work   repository.WorkRequestRepository
	health *sql.DB
}

// openLocalStores はDATABASE_DRIVERに応じてローカルストアを開く。
// SQLiteはスキーマを自動作成し、PostgreSQLはmigrateサブコマンドで作成済みであることを前提とする。
func openLocalStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*localStores, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.DatabaseURL, logger.WithComponent(log, "database"))
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite connection pool: %w", err)
		}
		if err := database.AutoMigrateSQLite(db); err != nil {
			sqlDB.Close()
			return nil, err
		}
		slog.Info("database connection established", slog.String("driver", cfg.DatabaseDriver))
		return &localStores{
			users:  repository.NewGormUserStore(db),
			notes:  repository.NewGormNoteStore(db),
			work:   repository.NewGormWorkRequestStore(db),
			health: sqlDB,
		}, nil

	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established", slog.String("driver", cfg.DatabaseDriver))
		return &localStores{
			users:  repository.NewPostgresUserStore(db),
			notes:  repository.NewPostgresNoteStore(db),
			work:   repository.NewPostgresWorkRequestStore(db),
			health: db,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.DatabaseDriver)
	}
}

// components はserveとworkerで共有する依存関係。
type components struct {
	cfg    *config.Config
	logger *slog.Logger

	stores    *localStores
	registry  *prometheus.Registry
	metrics   *metrics.Collector
	remote    *remote.Client
	users     *records.Repository[model.User]
	notes     *records.Repository[model.Note]
	scheduler *syncwork.Scheduler
}

// newComponents はローカルストア、リモートクライアント、リポジトリ、スケジューラを生成する。
func newComponents(ctx context.Context, cfg *config.Config, log *slog.Logger) (*components, error) {
	// 1. ローカルストア
	stores, err := openLocalStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リモートクライアント
	client, err := remote.NewClient(remote.Options{
		BaseURL:              cfg.RemoteBaseURL,
		Timeout:              cfg.RemoteTimeout,
		MaxRetries:           cfg.RemoteMaxRetries,
		RateLimit:            cfg.RemoteRateLimit,
		BlockPrivateNetworks: cfg.RemoteBlockPrivateNetworks,
		Observer:             collector,
	}, logger.WithComponent(log, "remote"))
	if err != nil {
		stores.health.Close()
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}

	// 4. リポジトリ
	repoLogger := logger.WithComponent(log, "repository")
	users := records.NewUserRepository(
		stores.users, remote.NewResource[model.User](client, "/users"), collector, repoLogger,
	)
	notes := records.NewNoteRepository(
		stores.notes, remote.NewResource[model.Note](client, "/notes"),
		security.NewNoteSanitizer(), collector, repoLogger,
	)

	// 5. スケジューラ
	scheduler := syncwork.NewScheduler(
		stores.work, logger.WithComponent(log, "scheduler"), cfg.SyncMaxConcurrent, cfg.SyncPollInterval,
		syncwork.WithNetworkConstraint(syncwork.NetworkConstraint{Pinger: client}),
		syncwork.WithRunObserver(collector),
	)

	c := &components{
		cfg:       cfg,
		logger:    log,
		stores:    stores,
		registry:  registry,
		metrics:   collector,
		remote:    client,
		users:     users,
		notes:     notes,
		scheduler: scheduler,
	}
	c.registerWork()
	return c, nil
}

// registerWork はワーク名に対応するハンドラーを登録する。
func (c *components) registerWork() {
	c.scheduler.Register(WorkSyncUsers, func(ctx context.Context) error {
		_, err := c.users.Refresh(ctx)
		return err
	})
	c.scheduler.Register(WorkSyncNotes, func(ctx context.Context) error {
		_, err := c.notes.Refresh(ctx)
		return err
	})

	cleanupJob := cleanup.NewCleanupJob(c.stores.work, logger.WithComponent(c.logger, "cleanup"), c.cfg.WorkRetentionDays)
	c.scheduler.Register(WorkCleanup, cleanupJob.Run)
}

// enqueueWork は定期実行ワークを登録する。既存の要求はそのまま残す。
func (c *components) enqueueWork(ctx context.Context) error {
	specs := []syncwork.WorkSpec{
		{Name: WorkSyncUsers, Schedule: c.cfg.SyncSchedule, RequiresNetwork: c.cfg.SyncRequiresNetwork},
		{Name: WorkSyncNotes, Schedule: c.cfg.SyncSchedule, RequiresNetwork: c.cfg.SyncRequiresNetwork},
		{Name: WorkCleanup, Schedule: "@daily"},
	}
	for _, spec := range specs {
		if _, err := c.scheduler.EnqueueUniquePeriodic(ctx, spec, model.ExistingWorkKeep); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", spec.Name, err)
		}
	}
	return nil
}

// server はHTTPサーバーとそのスコープで生成したViewModel。
type server struct {
	server *http.Server
	router http.Handler
	close  func()
}

// newServer はViewModelとハンドラーを組み立ててHTTPサーバーを生成する。
// ViewModelは起動時に1回読み込みを開始する。
// リクエストのベースコンテキストはctxとし、シャットダウン時にSSEストリームを終了させる。
func (c *components) newServer(ctx context.Context) *server {
	vmLogger := logger.WithComponent(c.logger, "viewmodel")
	usersVM := viewmodel.NewListViewModel[model.User](ctx, "users", c.users, c.metrics, vmLogger)
	notesVM := viewmodel.NewListViewModel[model.Note](ctx, "notes", c.notes, c.metrics, vmLogger)
	usersVM.Load()
	notesVM.Load()

	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(c.cfg.RateLimitGeneral), c.logger,
	)
	resources := []handler.ResourceRoutes{
		handler.NewResourceHandler[model.User]("users", usersVM, c.users, withUserID, c.metrics, c.logger),
		handler.NewResourceHandler[model.Note]("notes", notesVM, c.notes, withNoteID, c.metrics, c.logger),
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            c.logger,
		CORSAllowedOrigin: c.cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     c.stores.health,
		MetricsHandler:    metrics.Handler(c.registry),
		Resources:         resources,
		WorkService:       c.scheduler,
	})

	return &server{
		server: &http.Server{
			Addr:         ":" + c.cfg.ServerPort,
			Handler:      router,
			BaseContext:  func(net.Listener) context.Context { return ctx },
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router: router,
		close: func() {
			usersVM.Close()
			notesVM.Close()
		},
	}
}

// Close はローカルストアの接続を閉じる。
func (c *components) Close() error {
	if err := c.stores.health.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
