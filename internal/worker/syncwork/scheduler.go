// Package syncwork は名前付きの定期実行ワークを永続化し、スケジュールに従って実行する。
// ワーク要求はデータベースに保存されるため、プロセスの再起動をまたいで維持される。
// 実行は少なくとも1回（at-least-once）を保証する。
package syncwork

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/repository"
)

// Handler はワークの処理本体。
type Handler func(ctx context.Context) error

// WorkSpec は定期実行ワークの定義。
type WorkSpec struct {
	Name            string
	Schedule        string
	RequiresNetwork bool
}

// RunObserver はワーク実行の結果を受け取るインターフェース。
type RunObserver interface {
	RecordWorkRun(name, result string)
}

// registration は登録済みハンドラーと追加の制約。
type registration struct {
	handler     Handler
	constraints []Constraint
}

// Scheduler はワーク要求の登録・キャンセルと、実行期限を迎えたワークの実行を行う。
// ティッカーで実行対象を取得し、semaphoreパターンで最大並列数を制御する。
type Scheduler struct {
	repo           repository.WorkRequestRepository
	network        Constraint
	observer       RunObserver
	logger         *slog.Logger
	maxConcurrency int
	pollInterval   time.Duration

	mu       sync.RWMutex
	handlers map[string]registration

	now func() time.Time
}

// Option はSchedulerの任意設定。
type Option func(*Scheduler)

// WithNetworkConstraint はRequiresNetworkなワークに適用する制約を設定する。
func WithNetworkConstraint(c Constraint) Option {
	return func(s *Scheduler) { s.network = c }
}

// WithRunObserver は実行結果の記録先を設定する。
func WithRunObserver(o RunObserver) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler はSchedulerを生成する。
// pollIntervalは実行条件を満たさなかったワークを延期する時間。
// maxConcurrencyが0以下の場合はデフォルト値4、pollIntervalが0以下の場合は1分を使用する。
func NewScheduler(
	repo repository.WorkRequestRepository,
	logger *slog.Logger,
	maxConcurrency int,
	pollInterval time.Duration,
	opts ...Option,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	s := &Scheduler{
		repo:           repo,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		pollInterval:   pollInterval,
		handlers:       make(map[string]registration),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Second)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register はワーク名に対応するハンドラーを登録する。
// constraintsは実行前に毎回確認する追加の制約。
func (s *Scheduler) Register(name string, handler Handler, constraints ...Constraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = registration{handler: handler, constraints: constraints}
}

func (s *Scheduler) lookup(name string) (registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.handlers[name]
	return reg, ok
}

// EnqueueUniquePeriodic は名前で一意な定期実行ワークを登録する。
// 同名の有効なワークが既に存在する場合、ExistingWorkKeepでは既存をそのまま返し、
// ExistingWorkReplaceではスケジュールと制約を置き換えて失敗回数をリセットする。
// キャンセル済みのワークは存在しないものとして扱う。
func (s *Scheduler) EnqueueUniquePeriodic(ctx context.Context, spec WorkSpec, policy model.ExistingWorkPolicy) (*model.WorkRequest, error) {
	if spec.Name == "" {
		return nil, model.NewInvalidRequestError("work name is required")
	}
	if _, err := ParseSchedule(spec.Schedule); err != nil {
		return nil, model.NewInvalidScheduleError(spec.Schedule)
	}

	existing, err := s.repo.FindByName(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("ワーク要求の取得に失敗: %w", err)
	}

	if existing != nil && existing.Status != model.WorkStatusCancelled && policy == model.ExistingWorkKeep {
		s.logger.Info("既存のワーク要求を維持します",
			slog.String("work_name", spec.Name),
			slog.String("status", string(existing.Status)),
		)
		return existing, nil
	}

	now := s.now()
	req := &model.WorkRequest{
		Name:            spec.Name,
		Schedule:        spec.Schedule,
		RequiresNetwork: spec.RequiresNetwork,
		Status:          model.WorkStatusEnqueued,
		NextRunAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if existing != nil {
		req.CreatedAt = existing.CreatedAt
		req.LastRunAt = existing.LastRunAt
	}

	if err := s.repo.Upsert(ctx, req); err != nil {
		return nil, fmt.Errorf("ワーク要求の保存に失敗: %w", err)
	}

	s.logger.Info("ワーク要求を登録しました",
		slog.String("work_name", req.Name),
		slog.String("schedule", req.Schedule),
		slog.Bool("requires_network", req.RequiresNetwork),
	)
	return req, nil
}

// Cancel はワーク要求をキャンセルする。存在しない場合はWORK_NOT_FOUNDを返す。
// 実行中のワークは中断しないが、結果は記録されず以降は実行されない。
func (s *Scheduler) Cancel(ctx context.Context, name string) error {
	req, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("ワーク要求の取得に失敗: %w", err)
	}
	if req == nil {
		return model.NewWorkNotFoundError(name)
	}
	if req.Status == model.WorkStatusCancelled {
		return nil
	}

	req.Status = model.WorkStatusCancelled
	req.UpdatedAt = s.now()
	if err := s.repo.UpdateRunState(ctx, req); err != nil {
		return fmt.Errorf("ワーク要求のキャンセルに失敗: %w", err)
	}

	s.logger.Info("ワーク要求をキャンセルしました", slog.String("work_name", name))
	return nil
}

// List は全ワーク要求を返す。
func (s *Scheduler) List(ctx context.Context) ([]*model.WorkRequest, error) {
	reqs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ワーク要求一覧の取得に失敗: %w", err)
	}
	return reqs, nil
}

// Start はintervalごとのティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ワークスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ワーク実行サイクルに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ワークスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ワーク実行サイクルに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は実行期限を迎えたワークを1回取得し、並列で実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	due, err := s.repo.ListDue(ctx, s.now())
	if err != nil {
		return err
	}

	if len(due) == 0 {
		s.logger.Debug("実行対象のワークはありません")
		return nil
	}

	s.logger.Info("ワーク実行サイクルを開始します",
		slog.Int("work_count", len(due)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, req := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(r *model.WorkRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			s.execute(ctx, r)
		}(req)
	}

	wg.Wait()

	s.logger.Info("ワーク実行サイクルが完了しました",
		slog.Int("work_count", len(due)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// execute はワーク1件の制約を確認して実行し、結果を永続化する。
func (s *Scheduler) execute(ctx context.Context, req *model.WorkRequest) {
	logger := s.logger.With(slog.String("work_name", req.Name))

	sched, err := ParseSchedule(req.Schedule)
	if err != nil {
		logger.Error("保存されたスケジュールを解析できません",
			slog.String("schedule", req.Schedule),
			slog.String("error", err.Error()),
		)
		s.postpone(ctx, req, logger, "invalid schedule")
		return
	}

	reg, ok := s.lookup(req.Name)
	if !ok {
		logger.Warn("ハンドラーが登録されていないワークです")
		s.postpone(ctx, req, logger, "no handler")
		return
	}

	constraints := reg.constraints
	if req.RequiresNetwork && s.network != nil {
		constraints = append([]Constraint{s.network}, constraints...)
	}
	for _, c := range constraints {
		if err := c.Check(ctx); err != nil {
			logger.Info("実行条件を満たさないため延期します",
				slog.String("reason", err.Error()),
			)
			s.postpone(ctx, req, logger, err.Error())
			return
		}
	}

	req.Status = model.WorkStatusRunning
	req.UpdatedAt = s.now()
	if err := s.repo.UpdateRunState(ctx, req); err != nil {
		logger.Error("ワーク状態の更新に失敗しました", slog.String("error", err.Error()))
		return
	}

	runErr := runHandler(ctx, reg.handler)

	// 停止処理中の中断は失敗として数えず、次回起動時に再実行する
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	current, err := s.repo.FindByName(writeCtx, req.Name)
	if err != nil {
		logger.Error("ワーク要求の再取得に失敗しました", slog.String("error", err.Error()))
		return
	}
	if current == nil || current.Status == model.WorkStatusCancelled {
		logger.Info("実行中にキャンセルされたため結果を破棄します")
		return
	}

	now := s.now()
	switch {
	case ctx.Err() != nil:
		req.Status = model.WorkStatusEnqueued
		req.UpdatedAt = now
		logger.Info("停止によりワークを中断しました")
	case runErr != nil:
		ApplyFailure(req, sched, now, runErr.Error())
		s.record(req.Name, "failed")
		logger.Error("ワークの実行に失敗しました",
			slog.String("error", runErr.Error()),
			slog.Int("consecutive_failures", req.ConsecutiveFailures),
			slog.Time("next_run_at", req.NextRunAt),
		)
	default:
		ApplySuccess(req, sched, now)
		s.record(req.Name, "succeeded")
		logger.Info("ワークの実行が完了しました",
			slog.Time("next_run_at", req.NextRunAt),
		)
	}

	if err := s.repo.UpdateRunState(writeCtx, req); err != nil {
		logger.Error("ワーク状態の更新に失敗しました", slog.String("error", err.Error()))
	}
}

// postpone は次回の確認をpollInterval後に延期する。
func (s *Scheduler) postpone(ctx context.Context, req *model.WorkRequest, logger *slog.Logger, reason string) {
	ApplyDeferral(req, s.now(), s.pollInterval)
	s.record(req.Name, "deferred")
	if err := s.repo.UpdateRunState(ctx, req); err != nil {
		logger.Error("ワーク状態の更新に失敗しました",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) record(name, result string) {
	if s.observer != nil {
		s.observer.RecordWorkRun(name, result)
	}
}

// runHandler はハンドラーを実行し、panicをエラーに変換する。
func runHandler(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx)
}
