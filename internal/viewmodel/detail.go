package viewmodel

import (
	"context"
	"log/slog"

	"github.com/hitoshi/syncbook/internal/model"
)

// DetailSource はDetailViewModelが利用するリポジトリ操作。
type DetailSource[T model.Record] interface {
	GetByID(ctx context.Context, id int64) (T, error)
}

// DetailViewModel はレコード1件の状態ホルダー。初期状態はLoading。
type DetailViewModel[T model.Record] struct {
	*stateHolder[T]
	repo DetailSource[T]
}

// NewDetailViewModel はDetailViewModelを生成する。
func NewDetailViewModel[T model.Record](
	parent context.Context,
	resource string,
	repo DetailSource[T],
	observer TransitionObserver,
	logger *slog.Logger,
) *DetailViewModel[T] {
	return &DetailViewModel[T]{
		stateHolder: newStateHolder[T](parent, resource, observer, logger),
		repo:        repo,
	}
}

// Load は指定IDのレコードを読み込む。
func (vm *DetailViewModel[T]) Load(id int64) <-chan struct{} {
	return vm.launch("load", func(ctx context.Context) (T, error) {
		return vm.repo.GetByID(ctx, id)
	})
}
