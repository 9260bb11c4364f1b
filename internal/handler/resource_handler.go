package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/viewmodel"
)

// ListStateHolder はResourceHandlerが操作する一覧ViewModel。viewmodel.ListViewModelが実装する。
type ListStateHolder[T model.Record] interface {
	State() viewmodel.State[[]T]
	SubscribeWithCurrent() (viewmodel.State[[]T], <-chan viewmodel.State[[]T], func())
	Load() <-chan struct{}
	Refresh() <-chan struct{}
	Search(query string) <-chan struct{}
	Add(rec T) <-chan struct{}
	Update(rec T) <-chan struct{}
	Delete(id int64) <-chan struct{}
}

// RecordSource は詳細表示と変更通知のためのリポジトリ操作。records.Repositoryが実装する。
type RecordSource[T model.Record] interface {
	GetByID(ctx context.Context, id int64) (T, error)
	Observe(ctx context.Context) <-chan []T
}

// ResourceHandler は1種類のレコードに対するHTTPハンドラー。
// 一覧の操作は共有のListViewModelに委譲し、操作完了後の状態を返す。
// エラーも状態の一種として200で返す。
type ResourceHandler[T model.Record] struct {
	name     string
	list     ListStateHolder[T]
	source   RecordSource[T]
	withID   func(rec T, id int64) T
	observer viewmodel.TransitionObserver
	logger   *slog.Logger
}

// NewResourceHandler はResourceHandlerを生成する。
// withIDはPUTのパスで指定されたIDをレコードに設定する関数。
func NewResourceHandler[T model.Record](
	name string,
	list ListStateHolder[T],
	source RecordSource[T],
	withID func(rec T, id int64) T,
	observer viewmodel.TransitionObserver,
	logger *slog.Logger,
) *ResourceHandler[T] {
	return &ResourceHandler[T]{
		name:     name,
		list:     list,
		source:   source,
		withID:   withID,
		observer: observer,
		logger:   logger.With(slog.String("resource", name)),
	}
}

// Name はルーティングに使うリソース名を返す。
func (h *ResourceHandler[T]) Name() string {
	return h.name
}

// Mount は/api/{name}配下のルートを登録する。
func (h *ResourceHandler[T]) Mount(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/refresh", h.Refresh)
	r.Get("/search", h.Search)
	r.Get("/state", h.State)
	r.Get("/events", h.Events)
	r.Get("/changes", h.Changes)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Detail)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

// List は一覧を読み込み、完了後の状態を返す。
// GET /api/{name}
func (h *ResourceHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	h.respondAfter(w, r, h.list.Load())
}

// Refresh はリモートと同期し、完了後の状態を返す。
// POST /api/{name}/refresh
func (h *ResourceHandler[T]) Refresh(w http.ResponseWriter, r *http.Request) {
	h.respondAfter(w, r, h.list.Refresh())
}

// Search はローカルを部分一致で検索し、完了後の状態を返す。
// GET /api/{name}/search?q=
func (h *ResourceHandler[T]) Search(w http.ResponseWriter, r *http.Request) {
	h.respondAfter(w, r, h.list.Search(r.URL.Query().Get("q")))
}

// Create はレコードを追加する。
// POST /api/{name}
func (h *ResourceHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	var rec T
	if err := decodeBody(w, r, &rec); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondAfter(w, r, h.list.Add(rec))
}

// Update はレコードを更新する。パスのIDがボディのIDより優先される。
// PUT /api/{name}/{id}
func (h *ResourceHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var rec T
	if err := decodeBody(w, r, &rec); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondAfter(w, r, h.list.Update(h.withID(rec, id)))
}

// Delete はレコードを削除する。
// DELETE /api/{name}/{id}
func (h *ResourceHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.respondAfter(w, r, h.list.Delete(id))
}

// Detail は1件を読み込み、その状態を返す。
// リクエストごとにDetailViewModelを生成し、レスポンス後に破棄する。
// GET /api/{name}/{id}
func (h *ResourceHandler[T]) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	vm := viewmodel.NewDetailViewModel[T](r.Context(), h.name, h.source, h.observer, h.logger)
	defer vm.Close()

	select {
	case <-vm.Load(id):
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, vm.State())
}

// State は現在の一覧の状態を返す。操作は発行しない。
// GET /api/{name}/state
func (h *ResourceHandler[T]) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.list.State())
}

// Events は一覧の状態遷移をServer-Sent Eventsで配信する。接続直後に現在の状態を送る。
// GET /api/{name}/events
func (h *ResourceHandler[T]) Events(w http.ResponseWriter, r *http.Request) {
	current, ch, unsubscribe := h.list.SubscribeWithCurrent()
	defer unsubscribe()

	streamEvents(w, r, h.logger, "state", &current, ch)
}

// Changes はローカルストアの変更後スナップショットをServer-Sent Eventsで配信する。
// GET /api/{name}/changes
func (h *ResourceHandler[T]) Changes(w http.ResponseWriter, r *http.Request) {
	ch := h.source.Observe(r.Context())
	streamEvents[[]T](w, r, h.logger, "snapshot", nil, ch)
}

// respondAfter は操作の完了を待ってから現在の状態を返す。
// クライアントが切断した場合も操作自体は継続する。
func (h *ResourceHandler[T]) respondAfter(w http.ResponseWriter, r *http.Request, done <-chan struct{}) {
	select {
	case <-done:
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, h.list.State())
}
