package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/viewmodel"
)

// --- モック定義 ---

// mockListHolder はListStateHolderのモック実装。
// 各操作は呼び出しを記録し、resultFnが返す状態を設定してから完了済みチャネルを返す。
type mockListHolder struct {
	mu       sync.Mutex
	state    viewmodel.State[[]model.User]
	calls    []string
	lastRec  model.User
	lastID   int64
	query    string
	resultFn func(intent string) viewmodel.State[[]model.User]

	updates chan viewmodel.State[[]model.User]
}

func (m *mockListHolder) finish(intent string) <-chan struct{} {
	m.mu.Lock()
	m.calls = append(m.calls, intent)
	if m.resultFn != nil {
		m.state = m.resultFn(intent)
	}
	m.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

func (m *mockListHolder) State() viewmodel.State[[]model.User] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockListHolder) SubscribeWithCurrent() (viewmodel.State[[]model.User], <-chan viewmodel.State[[]model.User], func()) {
	return m.State(), m.updates, func() {}
}

func (m *mockListHolder) Load() <-chan struct{}    { return m.finish("load") }
func (m *mockListHolder) Refresh() <-chan struct{} { return m.finish("refresh") }

func (m *mockListHolder) Search(query string) <-chan struct{} {
	m.mu.Lock()
	m.query = query
	m.mu.Unlock()
	return m.finish("search")
}

func (m *mockListHolder) Add(rec model.User) <-chan struct{} {
	m.mu.Lock()
	m.lastRec = rec
	m.mu.Unlock()
	return m.finish("add")
}

func (m *mockListHolder) Update(rec model.User) <-chan struct{} {
	m.mu.Lock()
	m.lastRec = rec
	m.mu.Unlock()
	return m.finish("update")
}

func (m *mockListHolder) Delete(id int64) <-chan struct{} {
	m.mu.Lock()
	m.lastID = id
	m.mu.Unlock()
	return m.finish("delete")
}

func (m *mockListHolder) callList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockRecordSource はRecordSourceのモック実装。
type mockRecordSource struct {
	getByIDFn func(ctx context.Context, id int64) (model.User, error)
	changes   chan []model.User
}

func (m *mockRecordSource) GetByID(ctx context.Context, id int64) (model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return model.User{}, model.NewNotFoundError("User", id)
}

func (m *mockRecordSource) Observe(ctx context.Context) <-chan []model.User {
	return m.changes
}

// mockWorkService はWorkServiceInterfaceのモック実装。
type mockWorkService struct {
	listFn   func(ctx context.Context) ([]*model.WorkRequest, error)
	cancelFn func(ctx context.Context, name string) error
}

func (m *mockWorkService) List(ctx context.Context) ([]*model.WorkRequest, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockWorkService) Cancel(ctx context.Context, name string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, name)
	}
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

func withUserID(u model.User, id int64) model.User {
	u.ID = id
	return u
}

// newUserRouter はUsersのResourceHandlerだけをマウントしたルーターを返す。
func newUserRouter(list *mockListHolder, source *mockRecordSource) *chi.Mux {
	h := NewResourceHandler[model.User]("users", list, source, withUserID, nil, discardLogger())
	r := chi.NewRouter()
	r.Route("/api/users", h.Mount)
	return r
}

// decodeState はレスポンスボディをviewmodel.Stateとしてデコードする。
func decodeState[T any](t *testing.T, w *httptest.ResponseRecorder) viewmodel.State[T] {
	t.Helper()
	var s viewmodel.State[T]
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("failed to decode state: %v\nbody: %s", err, w.Body.String())
	}
	return s
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
