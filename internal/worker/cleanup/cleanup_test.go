package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// mockPruner はPrunerのモック実装。
type mockPruner struct {
	called  bool
	cutoff  time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.called = true
	m.cutoff = cutoff
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf), 0)

	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestCleanupJob_Run_PassesCutoff(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockPruner{deleted: 3}
	job := NewCleanupJob(mock, newTestLogger(&buf), 7)
	job.now = func() time.Time { return time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !mock.called {
		t.Fatal("DeleteCancelledBefore が呼ばれていない")
	}
	want := time.Date(2026, 10, 12, 3, 0, 0, 0, time.UTC)
	if !mock.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", mock.cutoff, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 5}, newTestLogger(&buf), 30)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログのJSONパースに失敗: %v", err)
	}
	if entry["deleted_count"] != float64(5) {
		t.Errorf("deleted_count = %v, want 5", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(30) {
		t.Errorf("retention_days = %v, want 30", entry["retention_days"])
	}
}

func TestCleanupJob_Run_NothingToDelete(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf), 30)

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("削除対象がない場合もエラーにならないこと: %v", err)
	}
}

func TestCleanupJob_Run_PrunerError(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	job := NewCleanupJob(&mockPruner{err: dbErr}, newTestLogger(&buf), 30)

	err := job.Run(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want wrapped %v", err, dbErr)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}
