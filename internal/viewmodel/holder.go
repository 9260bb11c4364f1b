package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/pubsub"
)

// TransitionObserver は公開された状態を受け取るインターフェース。
// metrics.Collectorが実装する。
type TransitionObserver interface {
	RecordStateTransition(resource, status string)
}

// stateHolder はライフサイクルスコープと状態の公開を管理する。
// 意図（Load、Addなど）ごとに世代番号を進め、最新の世代の結果だけを公開する。
type stateHolder[S any] struct {
	resource string
	state    *pubsub.Value[State[S]]
	observer TransitionObserver
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	closed     bool
}

func newStateHolder[S any](parent context.Context, resource string, observer TransitionObserver, logger *slog.Logger) *stateHolder[S] {
	ctx, cancel := context.WithCancel(parent)
	return &stateHolder[S]{
		resource: resource,
		state:    pubsub.NewValue(Loading[S](), 0),
		observer: observer,
		logger:   logger.With(slog.String("resource", resource)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// launch はLoadingを公開してからworkをゴルーチンで実行し、結果を公開する。
// 返すチャネルはworkの完了時にクローズされる。Close済みの場合は即座にクローズ済みチャネルを返す。
func (h *stateHolder[S]) launch(intent string, work func(ctx context.Context) (S, error)) <-chan struct{} {
	done := make(chan struct{})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(done)
		return done
	}
	h.generation++
	gen := h.generation
	h.wg.Add(1)
	h.setLocked(Loading[S]())
	h.mu.Unlock()

	h.logger.Debug("処理を開始しました", slog.String("intent", intent), slog.Uint64("generation", gen))

	go func() {
		defer close(done)
		defer h.wg.Done()

		data, err := work(h.ctx)
		if h.ctx.Err() != nil {
			// スコープが終了した結果は公開しない
			return
		}
		if err != nil {
			msg := errorMessage(err)
			h.logger.Warn("処理が失敗しました",
				slog.String("intent", intent),
				slog.String("error", msg),
			)
			h.publish(gen, Error[S](msg))
			return
		}
		h.publish(gen, Success(data))
	}()

	return done
}

// publish は世代が最新の場合のみ状態を公開する。
func (h *stateHolder[S]) publish(gen uint64, s State[S]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || gen != h.generation {
		h.logger.Debug("古い結果を破棄しました",
			slog.Uint64("generation", gen),
			slog.Uint64("current", h.generation),
		)
		return
	}
	h.setLocked(s)
}

func (h *stateHolder[S]) setLocked(s State[S]) {
	h.state.Set(s)
	if h.observer != nil {
		h.observer.RecordStateTransition(h.resource, string(s.Status()))
	}
}

// State は現在の状態を返す。
func (h *stateHolder[S]) State() State[S] {
	return h.state.Get()
}

// Subscribe は以降の状態変化を受け取るチャネルと購読解除関数を返す。
func (h *stateHolder[S]) Subscribe() (<-chan State[S], func()) {
	return h.state.Subscribe()
}

// SubscribeWithCurrent は現在の状態と、以降の状態変化を受け取るチャネルを返す。
func (h *stateHolder[S]) SubscribeWithCurrent() (State[S], <-chan State[S], func()) {
	return h.state.SubscribeWithCurrent()
}

// Close はスコープをキャンセルし、実行中の処理の終了を待ってから購読をすべてクローズする。
// 複数回呼んでも安全。
func (h *stateHolder[S]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	h.state.Close()
}

// errorMessage はエラーを表示用の文言に変換する。
func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return model.NewUnexpectedError(err.Error()).Message
}
