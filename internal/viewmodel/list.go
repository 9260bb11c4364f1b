package viewmodel

import (
	"context"
	"log/slog"

	"github.com/hitoshi/syncbook/internal/model"
)

// ListSource はListViewModelが利用するリポジトリ操作。records.Repositoryが実装する。
type ListSource[T model.Record] interface {
	GetAll(ctx context.Context) ([]T, error)
	Search(ctx context.Context, query string) ([]T, error)
	Refresh(ctx context.Context) ([]T, error)
	Add(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// ListViewModel はレコード一覧の状態ホルダー。初期状態はLoading。
//
// 各操作は1つのゴルーチンを起動し、Loadingを公開した後にSuccessかErrorを公開する。
// 後から発行された操作が優先され、それより前の操作の結果は公開されずに破棄される。
// 書き込み自体は後続の操作によって中断されない。
type ListViewModel[T model.Record] struct {
	*stateHolder[[]T]
	repo ListSource[T]
}

// NewListViewModel はListViewModelを生成する。parentがキャンセルされるかCloseが呼ばれるとスコープは終了する。
func NewListViewModel[T model.Record](
	parent context.Context,
	resource string,
	repo ListSource[T],
	observer TransitionObserver,
	logger *slog.Logger,
) *ListViewModel[T] {
	return &ListViewModel[T]{
		stateHolder: newStateHolder[[]T](parent, resource, observer, logger),
		repo:        repo,
	}
}

// Load は全件を読み込む。
func (vm *ListViewModel[T]) Load() <-chan struct{} {
	return vm.launch("load", vm.repo.GetAll)
}

// Refresh はリモートと同期してから全件を公開する。
func (vm *ListViewModel[T]) Refresh() <-chan struct{} {
	return vm.launch("refresh", vm.repo.Refresh)
}

// Search はローカルを部分一致で検索した結果を公開する。
func (vm *ListViewModel[T]) Search(query string) <-chan struct{} {
	return vm.launch("search", func(ctx context.Context) ([]T, error) {
		return vm.repo.Search(ctx, query)
	})
}

// Add はレコードを追加し、成功した場合は一覧を読み直して公開する。
func (vm *ListViewModel[T]) Add(rec T) <-chan struct{} {
	return vm.launch("add", func(ctx context.Context) ([]T, error) {
		if _, err := vm.repo.Add(ctx, rec); err != nil {
			return nil, err
		}
		return vm.repo.GetAll(ctx)
	})
}

// Update はレコードを更新し、成功した場合は一覧を読み直して公開する。
func (vm *ListViewModel[T]) Update(rec T) <-chan struct{} {
	return vm.launch("update", func(ctx context.Context) ([]T, error) {
		if _, err := vm.repo.Update(ctx, rec); err != nil {
			return nil, err
		}
		return vm.repo.GetAll(ctx)
	})
}

// Delete はレコードを削除し、成功した場合は一覧を読み直して公開する。
func (vm *ListViewModel[T]) Delete(id int64) <-chan struct{} {
	return vm.launch("delete", func(ctx context.Context) ([]T, error) {
		if err := vm.repo.Delete(ctx, id); err != nil {
			return nil, err
		}
		return vm.repo.GetAll(ctx)
	})
}
