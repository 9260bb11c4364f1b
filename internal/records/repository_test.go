package records

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/remote"
	"github.com/hitoshi/syncbook/internal/security"
)

var (
	leanne = model.User{ID: 1, Name: "Leanne Graham", Username: "Bret", Email: "leanne@example.com"}
	ervin  = model.User{ID: 2, Name: "Ervin Howell", Username: "Antonette", Email: "ervin@example.com"}
)

func newUserRepo(local *memStore[model.User], rem *mockRemote[model.User], cache CacheObserver) *Repository[model.User] {
	return NewUserRepository(local, rem, cache, testLogger())
}

func assertAPIError(t *testing.T, err error, code string) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %T: %v", code, err, err)
	}
	if apiErr.Code != code {
		t.Fatalf("Code = %s, want %s (message %q)", apiErr.Code, code, apiErr.Message)
	}
	return apiErr
}

func TestGetAll_LocalHitSkipsRemote(t *testing.T) {
	local := newMemStore(matchUser, leanne, ervin)
	rem := &mockRemote[model.User]{}
	cache := &countingCache{}
	repo := newUserRepo(local, rem, cache)

	got, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	if len(got) != 2 || got[0] != leanne {
		t.Errorf("GetAll = %+v", got)
	}
	if rem.callCount() != 0 {
		t.Errorf("remote called %d times, want 0", rem.callCount())
	}
	if cache.hits != 1 || cache.misses != 0 {
		t.Errorf("hits/misses = %d/%d, want 1/0", cache.hits, cache.misses)
	}
}

func TestGetAll_EmptyLocalFetchesAndWritesThrough(t *testing.T) {
	local := newMemStore(matchUser)
	rem := &mockRemote[model.User]{
		listFn: func(ctx context.Context) ([]model.User, error) {
			return []model.User{leanne, ervin}, nil
		},
	}
	cache := &countingCache{}
	repo := newUserRepo(local, rem, cache)

	got, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetAll = %+v", got)
	}

	stored, _ := local.GetAll(context.Background())
	if len(stored) != 2 {
		t.Errorf("local has %d records, want 2", len(stored))
	}

	// 2回目はローカルから返る
	if _, err := repo.GetAll(context.Background()); err != nil {
		t.Fatalf("second GetAll returned error: %v", err)
	}
	if rem.callCount() != 1 {
		t.Errorf("remote called %d times, want 1", rem.callCount())
	}
	if cache.hits != 1 || cache.misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", cache.hits, cache.misses)
	}
}

func TestGetAll_RemoteFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "network",
			err:         &remote.NetworkError{Method: "GET", URL: "http://x/users", Err: errors.New("connection refused")},
			wantCode:    model.ErrCodeNetwork,
			wantMessage: "Network error: connection refused",
		},
		{
			name:        "server",
			err:         &remote.StatusError{Method: "GET", URL: "http://x/users", StatusCode: 503},
			wantCode:    model.ErrCodeServer,
			wantMessage: "Server error (HTTP 503)",
		},
		{
			name:        "unexpected",
			err:         errors.New("failed to decode response"),
			wantCode:    model.ErrCodeUnexpected,
			wantMessage: "Unexpected error: failed to decode response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newMemStore(matchUser)
			rem := &mockRemote[model.User]{
				listFn: func(ctx context.Context) ([]model.User, error) { return nil, tt.err },
			}
			repo := newUserRepo(local, rem, nil)

			_, err := repo.GetAll(context.Background())
			apiErr := assertAPIError(t, err, tt.wantCode)
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if local.writeCount() != 0 {
				t.Errorf("local written %d times, want 0", local.writeCount())
			}
		})
	}
}

func TestGetAll_LocalErrorIsUnexpected(t *testing.T) {
	local := newMemStore(matchUser)
	local.err = errors.New("disk I/O error")
	repo := newUserRepo(local, &mockRemote[model.User]{}, nil)

	_, err := repo.GetAll(context.Background())
	apiErr := assertAPIError(t, err, model.ErrCodeUnexpected)
	if !strings.Contains(apiErr.Message, "disk I/O error") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGetAll_CancellationPassesThrough(t *testing.T) {
	rem := &mockRemote[model.User]{
		listFn: func(ctx context.Context) ([]model.User, error) { return nil, ctx.Err() },
	}
	repo := newUserRepo(newMemStore(matchUser), rem, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.GetAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	t.Run("ローカルにある場合はリモートを呼ばない", func(t *testing.T) {
		rem := &mockRemote[model.User]{}
		repo := newUserRepo(newMemStore(matchUser, leanne), rem, nil)

		got, err := repo.GetByID(context.Background(), 1)
		if err != nil || got != leanne {
			t.Fatalf("GetByID = %+v, %v", got, err)
		}
		if rem.callCount() != 0 {
			t.Errorf("remote called %d times", rem.callCount())
		}
	})

	t.Run("リモートから取得してローカルに保存する", func(t *testing.T) {
		local := newMemStore(matchUser)
		rem := &mockRemote[model.User]{
			getFn: func(ctx context.Context, id int64) (*model.User, error) {
				u := ervin
				return &u, nil
			},
		}
		repo := newUserRepo(local, rem, nil)

		got, err := repo.GetByID(context.Background(), 2)
		if err != nil || got != ervin {
			t.Fatalf("GetByID = %+v, %v", got, err)
		}
		if stored, _ := local.GetByID(context.Background(), 2); stored == nil {
			t.Error("fetched record was not written to local")
		}
	})

	t.Run("書き込みがなければ同じレコードを返す", func(t *testing.T) {
		rem := &mockRemote[model.User]{
			getFn: func(ctx context.Context, id int64) (*model.User, error) {
				u := ervin
				return &u, nil
			},
		}
		repo := newUserRepo(newMemStore(matchUser), rem, nil)

		first, err := repo.GetByID(context.Background(), 2)
		if err != nil {
			t.Fatalf("first GetByID returned error: %v", err)
		}
		second, err := repo.GetByID(context.Background(), 2)
		if err != nil {
			t.Fatalf("second GetByID returned error: %v", err)
		}
		if first != second {
			t.Errorf("GetByID = %+v then %+v, want equal", first, second)
		}
		if rem.callCount() != 1 {
			t.Errorf("remote called %d times, want 1", rem.callCount())
		}
	})

	t.Run("どちらにもない場合はNOT_FOUND", func(t *testing.T) {
		repo := newUserRepo(newMemStore(matchUser), &mockRemote[model.User]{}, nil)

		_, err := repo.GetByID(context.Background(), 42)
		apiErr := assertAPIError(t, err, model.ErrCodeNotFound)
		if apiErr.Message != "User not found: 42" {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})
}

func TestSearch_LocalOnly(t *testing.T) {
	rem := &mockRemote[model.User]{}
	repo := newUserRepo(newMemStore(matchUser, leanne, ervin), rem, nil)

	got, err := repo.Search(context.Background(), "ervin")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(got) != 1 || got[0] != ervin {
		t.Errorf("Search = %+v", got)
	}

	got, err = repo.Search(context.Background(), "nobody")
	if err != nil || len(got) != 0 {
		t.Errorf("Search(nobody) = %+v, %v", got, err)
	}
	if rem.callCount() != 0 {
		t.Errorf("remote called %d times, want 0", rem.callCount())
	}
}

func TestAdd_UsesServerAssignedID(t *testing.T) {
	local := newMemStore(matchUser)
	rem := &mockRemote[model.User]{
		createFn: func(ctx context.Context, rec model.User) (model.User, error) {
			rec.ID = 11
			return rec, nil
		},
	}
	repo := newUserRepo(local, rem, nil)

	got, err := repo.Add(context.Background(), model.User{Name: "  Nicholas  ", Email: "nick@example.com"})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if got.ID != 11 || got.Name != "Nicholas" {
		t.Errorf("Add = %+v", got)
	}
	if stored, _ := local.GetByID(context.Background(), 11); stored == nil || *stored != got {
		t.Errorf("local = %+v, want %+v", stored, got)
	}

	all, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll returned error: %v", err)
	}
	if len(all) != 1 || all[0] != got {
		t.Errorf("GetAll after Add = %+v, want [%+v]", all, got)
	}
}

func TestAdd_RemoteFailureSkipsLocalWrite(t *testing.T) {
	local := newMemStore(matchUser)
	rem := &mockRemote[model.User]{
		createFn: func(ctx context.Context, rec model.User) (model.User, error) {
			return model.User{}, &remote.StatusError{Method: "POST", URL: "x", StatusCode: 500}
		},
	}
	repo := newUserRepo(local, rem, nil)

	_, err := repo.Add(context.Background(), model.User{Name: "A", Email: "a@example.com"})
	assertAPIError(t, err, model.ErrCodeServer)
	if local.writeCount() != 0 {
		t.Errorf("local written %d times, want 0", local.writeCount())
	}
}

func TestAdd_ValidationFailsBeforeBackends(t *testing.T) {
	local := newMemStore(matchUser)
	rem := &mockRemote[model.User]{}
	repo := newUserRepo(local, rem, nil)

	_, err := repo.Add(context.Background(), model.User{Name: " ", Email: "not-an-email"})
	apiErr := assertAPIError(t, err, model.ErrCodeValidation)
	for _, want := range []string{"name is required", "email must be a valid email"} {
		if !strings.Contains(apiErr.Message, want) {
			t.Errorf("Message %q should contain %q", apiErr.Message, want)
		}
	}
	if rem.callCount() != 0 || local.writeCount() != 0 {
		t.Errorf("backends touched: remote=%d local=%d", rem.callCount(), local.writeCount())
	}
}

func TestUpdate(t *testing.T) {
	t.Run("リモート成功後にローカルを置き換える", func(t *testing.T) {
		local := newMemStore(matchUser, leanne)
		repo := newUserRepo(local, &mockRemote[model.User]{}, nil)

		changed := leanne
		changed.Phone = "555-0100"
		got, err := repo.Update(context.Background(), changed)
		if err != nil || got != changed {
			t.Fatalf("Update = %+v, %v", got, err)
		}
		if stored, _ := local.GetByID(context.Background(), 1); stored == nil || *stored != changed {
			t.Errorf("local = %+v", stored)
		}
	})

	t.Run("ローカルにないレコードも保存する", func(t *testing.T) {
		local := newMemStore(matchUser, leanne)
		repo := newUserRepo(local, &mockRemote[model.User]{}, nil)

		changed := ervin
		changed.Website = "ervin.example.com"
		if _, err := repo.Update(context.Background(), changed); err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		stored, _ := local.GetByID(context.Background(), 2)
		if stored == nil || *stored != changed {
			t.Errorf("local = %+v, want %+v", stored, changed)
		}
	})

	t.Run("IDなしは検証エラー", func(t *testing.T) {
		rem := &mockRemote[model.User]{}
		repo := newUserRepo(newMemStore(matchUser), rem, nil)

		_, err := repo.Update(context.Background(), model.User{Name: "A", Email: "a@example.com"})
		assertAPIError(t, err, model.ErrCodeValidation)
		if rem.callCount() != 0 {
			t.Error("remote should not be called")
		}
	})

	t.Run("リモートの404はNOT_FOUND", func(t *testing.T) {
		local := newMemStore(matchUser, leanne)
		rem := &mockRemote[model.User]{
			updateFn: func(ctx context.Context, id int64, rec model.User) (model.User, error) {
				return model.User{}, &remote.StatusError{Method: "PUT", URL: "x", StatusCode: http.StatusNotFound}
			},
		}
		repo := newUserRepo(local, rem, nil)

		_, err := repo.Update(context.Background(), leanne)
		assertAPIError(t, err, model.ErrCodeNotFound)
		if local.writeCount() != 0 {
			t.Error("local should not be written")
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("リモート成功後にローカルから削除する", func(t *testing.T) {
		local := newMemStore(matchUser, leanne, ervin)
		repo := newUserRepo(local, &mockRemote[model.User]{}, nil)

		if err := repo.Delete(context.Background(), 1); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if stored, _ := local.GetByID(context.Background(), 1); stored != nil {
			t.Error("record still in local store")
		}
	})

	t.Run("削除後のGetByIDはNOT_FOUND", func(t *testing.T) {
		local := newMemStore(matchUser, leanne, ervin)
		deleted := false
		rem := &mockRemote[model.User]{
			getFn: func(ctx context.Context, id int64) (*model.User, error) {
				if deleted {
					return nil, nil
				}
				u := leanne
				return &u, nil
			},
			deleteFn: func(ctx context.Context, id int64) error {
				deleted = true
				return nil
			},
		}
		repo := newUserRepo(local, rem, nil)

		if err := repo.Delete(context.Background(), 1); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		_, err := repo.GetByID(context.Background(), 1)
		assertAPIError(t, err, model.ErrCodeNotFound)
		if got, err := repo.GetByID(context.Background(), 2); err != nil || got != ervin {
			t.Errorf("GetByID(2) = %+v, %v", got, err)
		}
	})

	t.Run("リモートで既に削除済みならローカルも削除する", func(t *testing.T) {
		local := newMemStore(matchUser, leanne)
		rem := &mockRemote[model.User]{
			deleteFn: func(ctx context.Context, id int64) error {
				return &remote.StatusError{Method: "DELETE", URL: "x", StatusCode: http.StatusNotFound}
			},
		}
		repo := newUserRepo(local, rem, nil)

		if err := repo.Delete(context.Background(), 1); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if stored, _ := local.GetByID(context.Background(), 1); stored != nil {
			t.Error("record still in local store")
		}
	})

	t.Run("リモート失敗時はローカルを残す", func(t *testing.T) {
		local := newMemStore(matchUser, leanne)
		rem := &mockRemote[model.User]{
			deleteFn: func(ctx context.Context, id int64) error {
				return &remote.NetworkError{Method: "DELETE", URL: "x", Err: errors.New("timeout")}
			},
		}
		repo := newUserRepo(local, rem, nil)

		err := repo.Delete(context.Background(), 1)
		assertAPIError(t, err, model.ErrCodeNetwork)
		if stored, _ := local.GetByID(context.Background(), 1); stored == nil {
			t.Error("record should remain in local store")
		}
	})
}

func TestRefresh_ReplacesLocalContents(t *testing.T) {
	stale := model.User{ID: 9, Name: "Stale", Email: "stale@example.com"}
	local := newMemStore(matchUser, stale)
	rem := &mockRemote[model.User]{
		listFn: func(ctx context.Context) ([]model.User, error) {
			return []model.User{leanne, ervin}, nil
		},
	}
	repo := newUserRepo(local, rem, nil)

	got, err := repo.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Refresh = %+v", got)
	}
	stored, _ := local.GetAll(context.Background())
	if len(stored) != 2 || stored[0] != leanne || stored[1] != ervin {
		t.Errorf("local = %+v, want [leanne ervin]", stored)
	}
}

func TestRefresh_RemoteFailureKeepsLocal(t *testing.T) {
	local := newMemStore(matchUser, leanne)
	rem := &mockRemote[model.User]{
		listFn: func(ctx context.Context) ([]model.User, error) {
			return nil, &remote.NetworkError{Method: "GET", URL: "x", Err: errors.New("no route to host")}
		},
	}
	repo := newUserRepo(local, rem, nil)

	_, err := repo.Refresh(context.Background())
	assertAPIError(t, err, model.ErrCodeNetwork)
	if stored, _ := local.GetAll(context.Background()); len(stored) != 1 {
		t.Errorf("local = %+v, want unchanged", stored)
	}
}

func TestObserve_PublishesSnapshotsAfterWrites(t *testing.T) {
	local := newMemStore(matchUser, leanne)
	repo := newUserRepo(local, &mockRemote[model.User]{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	changes := repo.Observe(ctx)

	if _, err := repo.Add(context.Background(), ervin); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	select {
	case snapshot := <-changes:
		if len(snapshot) != 2 {
			t.Errorf("snapshot = %+v, want 2 records", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// 残っていた値を読み捨ててクローズを待つ
			if _, ok := <-changes; ok {
				t.Error("channel should be closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after cancel")
	}
}

func TestNoteRepository_SanitizesContentBeforeRemote(t *testing.T) {
	local := newMemStore(func(n model.Note, q string) bool { return strings.Contains(n.Title, q) })
	var sent model.Note
	rem := &mockRemote[model.Note]{
		createFn: func(ctx context.Context, rec model.Note) (model.Note, error) {
			sent = rec
			rec.ID = 101
			return rec, nil
		},
	}
	repo := NewNoteRepository(local, rem, security.NewNoteSanitizer(), nil, testLogger())

	got, err := repo.Add(context.Background(), model.Note{
		Title:   "  買い物  ",
		Content: `<p onclick="x">牛乳</p><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if sent.Title != "買い物" {
		t.Errorf("sent title = %q", sent.Title)
	}
	if strings.Contains(sent.Content, "script") || strings.Contains(sent.Content, "onclick") {
		t.Errorf("content was not sanitized before remote write: %q", sent.Content)
	}
	if got.ID != 101 {
		t.Errorf("ID = %d, want 101", got.ID)
	}
}

func TestNoteRepository_TitleRequired(t *testing.T) {
	rem := &mockRemote[model.Note]{}
	repo := NewNoteRepository(newMemStore(func(model.Note, string) bool { return false }), rem, security.NewNoteSanitizer(), nil, testLogger())

	_, err := repo.Add(context.Background(), model.Note{Content: "body"})
	apiErr := assertAPIError(t, err, model.ErrCodeValidation)
	if !strings.Contains(apiErr.Message, "title is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}
