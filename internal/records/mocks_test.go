package records

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hitoshi/syncbook/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore はLocalStoreのインメモリ実装。
type memStore[T model.Record] struct {
	mu      sync.Mutex
	records map[int64]T
	match   func(T, string) bool
	err     error
	writes  int
}

func newMemStore[T model.Record](match func(T, string) bool, initial ...T) *memStore[T] {
	s := &memStore[T]{records: make(map[int64]T), match: match}
	for _, rec := range initial {
		s.records[rec.RecordID()] = rec
	}
	return s
}

func (s *memStore[T]) sorted() []T {
	out := make([]T, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

func (s *memStore[T]) GetAll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.sorted(), nil
}

func (s *memStore[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStore[T]) Search(ctx context.Context, query string) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []T{}
	for _, rec := range s.sorted() {
		if s.match(rec, query) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore[T]) Insert(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.records[rec.RecordID()] = rec
	return nil
}

func (s *memStore[T]) InsertAll(ctx context.Context, recs []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes++
	for _, rec := range recs {
		s.records[rec.RecordID()] = rec
	}
	return nil
}

func (s *memStore[T]) Update(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.records[rec.RecordID()]; ok {
		s.records[rec.RecordID()] = rec
	}
	return nil
}

func (s *memStore[T]) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.records, id)
	return nil
}

func (s *memStore[T]) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.records = make(map[int64]T)
	return nil
}

func (s *memStore[T]) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func matchUser(u model.User, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q)
}

// mockRemote はRemoteSourceのモック。
type mockRemote[T model.Record] struct {
	listFn   func(ctx context.Context) ([]T, error)
	getFn    func(ctx context.Context, id int64) (*T, error)
	createFn func(ctx context.Context, rec T) (T, error)
	updateFn func(ctx context.Context, id int64, rec T) (T, error)
	deleteFn func(ctx context.Context, id int64) error

	mu    sync.Mutex
	calls []string
}

func (m *mockRemote[T]) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockRemote[T]) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockRemote[T]) List(ctx context.Context) ([]T, error) {
	m.record("List")
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []T{}, nil
}

func (m *mockRemote[T]) Get(ctx context.Context, id int64) (*T, error) {
	m.record("Get")
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockRemote[T]) Create(ctx context.Context, rec T) (T, error) {
	m.record("Create")
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return rec, nil
}

func (m *mockRemote[T]) Update(ctx context.Context, id int64, rec T) (T, error) {
	m.record("Update")
	if m.updateFn != nil {
		return m.updateFn(ctx, id, rec)
	}
	return rec, nil
}

func (m *mockRemote[T]) Delete(ctx context.Context, id int64) error {
	m.record("Delete")
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// countingCache はCacheObserverのテスト用実装。
type countingCache struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *countingCache) RecordCacheHit(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
}

func (c *countingCache) RecordCacheMiss(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
}
