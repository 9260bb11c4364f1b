// Package records はローカルストアとリモートサービスを1つのAPIにまとめるリポジトリを提供する。
//
// 読み取りはキャッシュ優先（ローカルが空の場合のみリモートから取得して書き込む）で、
// 書き込みはリモートを先に実行し、成功した場合のみローカルへ反映する。
// 有効期限や無効化のポリシーは持たない。ローカルの内容を入れ替えるのはRefreshのみ。
package records

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/pubsub"
	"github.com/hitoshi/syncbook/internal/remote"
	"github.com/hitoshi/syncbook/internal/repository"
)

// RemoteSource はリモートサービスのRESTエンドポイント。remote.Resourceが実装する。
type RemoteSource[T model.Record] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (*T, error)
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, id int64, rec T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// CacheObserver はキャッシュの当たり外れを受け取るインターフェース。
type CacheObserver interface {
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
}

// Option はRepositoryの任意設定。
type Option[T model.Record] func(*Repository[T])

// WithNormalizer は書き込み前に適用する正規化関数を設定する。
func WithNormalizer[T model.Record](fn func(T) T) Option[T] {
	return func(r *Repository[T]) { r.normalize = fn }
}

// WithCacheObserver はキャッシュメトリクスの記録先を設定する。
func WithCacheObserver[T model.Record](obs CacheObserver) Option[T] {
	return func(r *Repository[T]) { r.cache = obs }
}

// Repository はレコード1種類分のキャッシュ優先リポジトリ。
// 返すエラーは*model.APIErrorか、コンテキストのキャンセルのいずれか。
type Repository[T model.Record] struct {
	resource  string
	kind      string
	local     repository.LocalStore[T]
	remote    RemoteSource[T]
	normalize func(T) T
	cache     CacheObserver
	changes   *pubsub.Broadcaster[[]T]
	logger    *slog.Logger
}

// NewRepository はRepositoryを生成する。
// resourceはメトリクスとログで使う名前（"users"）、kindはエラーメッセージで使う単数名（"User"）。
func NewRepository[T model.Record](
	resource, kind string,
	local repository.LocalStore[T],
	remote RemoteSource[T],
	logger *slog.Logger,
	opts ...Option[T],
) *Repository[T] {
	r := &Repository[T]{
		resource: resource,
		kind:     kind,
		local:    local,
		remote:   remote,
		changes:  pubsub.NewBroadcaster[[]T](0),
		logger:   logger.With(slog.String("resource", resource)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resource はリソース名を返す。
func (r *Repository[T]) Resource() string {
	return r.resource
}

// GetAll は全レコードを返す。ローカルが空の場合はリモートから取得してローカルへ保存する。
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	cached, err := r.local.GetAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(cached) > 0 {
		r.recordHit()
		return cached, nil
	}
	r.recordMiss()

	fetched, err := r.remote.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if err := r.local.InsertAll(ctx, fetched); err != nil {
		return nil, classify(err)
	}
	r.logger.Info("リモートから取得したレコードをローカルに保存しました",
		slog.Int("count", len(fetched)),
	)
	r.publishSnapshot(ctx)
	return fetched, nil
}

// GetByID は指定IDのレコードを返す。ローカルにない場合はリモートから取得してローカルへ保存する。
// どちらにも存在しない場合はNOT_FOUNDを返す。
func (r *Repository[T]) GetByID(ctx context.Context, id int64) (T, error) {
	var zero T

	cached, err := r.local.GetByID(ctx, id)
	if err != nil {
		return zero, classify(err)
	}
	if cached != nil {
		r.recordHit()
		return *cached, nil
	}
	r.recordMiss()

	fetched, err := r.remote.Get(ctx, id)
	if err != nil {
		return zero, classify(err)
	}
	if fetched == nil {
		return zero, model.NewNotFoundError(r.kind, id)
	}
	if err := r.local.Insert(ctx, *fetched); err != nil {
		return zero, classify(err)
	}
	r.publishSnapshot(ctx)
	return *fetched, nil
}

// Search はローカルストアを部分一致で検索する。リモートへのフォールバックはしない。
func (r *Repository[T]) Search(ctx context.Context, query string) ([]T, error) {
	found, err := r.local.Search(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	return found, nil
}

// Add はレコードをリモートに作成し、サーバーが採番したIDでローカルへ保存する。
// リモートが失敗した場合はローカルに書き込まない。
func (r *Repository[T]) Add(ctx context.Context, rec T) (T, error) {
	var zero T

	rec = r.prepare(rec)
	if err := validateRecord(rec); err != nil {
		return zero, err
	}

	created, err := r.remote.Create(ctx, rec)
	if err != nil {
		return zero, classify(err)
	}
	if created == zero {
		created = rec
	}

	if err := r.local.Insert(ctx, created); err != nil {
		return zero, classify(err)
	}
	r.logger.Info("レコードを追加しました", slog.Int64("id", created.RecordID()))
	r.publishSnapshot(ctx)
	return created, nil
}

// Update はレコードをリモートで全フィールド置き換えし、成功した場合にローカルへ反映する。
// ローカルに未取得のレコードでもリモートの結果をそのまま保存する。
func (r *Repository[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T

	rec = r.prepare(rec)
	if rec.RecordID() <= 0 {
		return zero, model.NewValidationError("id is required")
	}
	if err := validateRecord(rec); err != nil {
		return zero, err
	}

	updated, err := r.remote.Update(ctx, rec.RecordID(), rec)
	if err != nil {
		if code, ok := remote.StatusCode(err); ok && code == http.StatusNotFound {
			return zero, model.NewNotFoundError(r.kind, rec.RecordID())
		}
		return zero, classify(err)
	}
	if updated == zero {
		updated = rec
	}

	if err := r.local.Insert(ctx, updated); err != nil {
		return zero, classify(err)
	}
	r.logger.Info("レコードを更新しました", slog.Int64("id", updated.RecordID()))
	r.publishSnapshot(ctx)
	return updated, nil
}

// Delete はレコードをリモートから削除し、成功した場合にローカルからも削除する。
// リモートに既に存在しない（404）場合は削除済みとしてローカルの削除に進む。
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	if err := r.remote.Delete(ctx, id); err != nil {
		if code, ok := remote.StatusCode(err); !ok || code != http.StatusNotFound {
			return classify(err)
		}
	}

	if err := r.local.Delete(ctx, id); err != nil {
		return classify(err)
	}
	r.logger.Info("レコードを削除しました", slog.Int64("id", id))
	r.publishSnapshot(ctx)
	return nil
}

// Refresh はリモートの全件でローカルの内容を置き換える。
// 定期同期ワークから呼ばれる明示的なトリガーであり、無効化ポリシーではない。
func (r *Repository[T]) Refresh(ctx context.Context) ([]T, error) {
	fetched, err := r.remote.List(ctx)
	if err != nil {
		return nil, classify(err)
	}

	if err := r.local.DeleteAll(ctx); err != nil {
		return nil, classify(err)
	}
	if err := r.local.InsertAll(ctx, fetched); err != nil {
		return nil, classify(err)
	}

	r.logger.Info("ローカルストアをリモートと同期しました", slog.Int("count", len(fetched)))
	r.changes.Publish(fetched)
	return fetched, nil
}

// Observe はローカルストアへの書き込みが成功するたびに全件のスナップショットを配信する。
// ctxがキャンセルされるとチャネルはクローズされる。
func (r *Repository[T]) Observe(ctx context.Context) <-chan []T {
	ch, cancel := r.changes.Subscribe()
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch
}

func (r *Repository[T]) prepare(rec T) T {
	if r.normalize != nil {
		return r.normalize(rec)
	}
	return rec
}

// publishSnapshot はローカルの全件を読み直して購読者へ配信する。
// 書き込み自体は成功しているため、読み直しの失敗はログのみとする。
func (r *Repository[T]) publishSnapshot(ctx context.Context) {
	if r.changes.SubscriberCount() == 0 {
		return
	}
	snapshot, err := r.local.GetAll(ctx)
	if err != nil {
		r.logger.Warn("変更通知用のスナップショット取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	r.changes.Publish(snapshot)
}

func (r *Repository[T]) recordHit() {
	if r.cache != nil {
		r.cache.RecordCacheHit(r.resource)
	}
}

func (r *Repository[T]) recordMiss() {
	if r.cache != nil {
		r.cache.RecordCacheMiss(r.resource)
	}
}
