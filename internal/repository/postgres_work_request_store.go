package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
)

// PostgresWorkRequestStore はPostgreSQLを使用したワーク要求リポジトリ。
type PostgresWorkRequestStore struct {
	db *sql.DB
}

// NewPostgresWorkRequestStore はPostgresWorkRequestStoreを生成する。
func NewPostgresWorkRequestStore(db *sql.DB) *PostgresWorkRequestStore {
	return &PostgresWorkRequestStore{db: db}
}

const workRequestColumns = `name, schedule, requires_network, status, consecutive_failures,
	last_error, next_run_at, last_run_at, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkRequest(row rowScanner) (*model.WorkRequest, error) {
	req := &model.WorkRequest{}
	var lastRunAt sql.NullTime
	err := row.Scan(
		&req.Name, &req.Schedule, &req.RequiresNetwork, &req.Status, &req.ConsecutiveFailures,
		&req.LastError, &req.NextRunAt, &lastRunAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		req.LastRunAt = &t
	}
	return req, nil
}

// FindByName は指定名のワーク要求を取得する。見つからない場合はnilを返す。
func (s *PostgresWorkRequestStore) FindByName(ctx context.Context, name string) (*model.WorkRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workRequestColumns+` FROM work_requests WHERE name = $1`,
		name,
	)
	req, err := scanWorkRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work request: %w", err)
	}
	return req, nil
}

// Upsert はワーク要求を名前をキーに作成または置き換える。
func (s *PostgresWorkRequestStore) Upsert(ctx context.Context, req *model.WorkRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_requests (`+workRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (name) DO UPDATE SET
		     schedule = EXCLUDED.schedule, requires_network = EXCLUDED.requires_network,
		     status = EXCLUDED.status, consecutive_failures = EXCLUDED.consecutive_failures,
		     last_error = EXCLUDED.last_error, next_run_at = EXCLUDED.next_run_at,
		     last_run_at = EXCLUDED.last_run_at, updated_at = EXCLUDED.updated_at`,
		req.Name, req.Schedule, req.RequiresNetwork, req.Status, req.ConsecutiveFailures,
		req.LastError, req.NextRunAt, req.LastRunAt, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work request: %w", err)
	}
	return nil
}

// List は全ワーク要求を名前順で返す。
func (s *PostgresWorkRequestStore) List(ctx context.Context) ([]*model.WorkRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workRequestColumns+` FROM work_requests ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list work requests: %w", err)
	}
	defer rows.Close()

	return collectWorkRequests(rows)
}

// ListDue はnext_run_at <= now かつキャンセルされていないワーク要求を返す。
func (s *PostgresWorkRequestStore) ListDue(ctx context.Context, now time.Time) ([]*model.WorkRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workRequestColumns+` FROM work_requests
		 WHERE next_run_at <= $1 AND status <> $2
		 ORDER BY next_run_at`,
		now, model.WorkStatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due work requests: %w", err)
	}
	defer rows.Close()

	return collectWorkRequests(rows)
}

// UpdateRunState は実行結果を更新する。キャンセル済みの行は更新しない。
func (s *PostgresWorkRequestStore) UpdateRunState(ctx context.Context, req *model.WorkRequest) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE work_requests SET
		     status = $2, consecutive_failures = $3, last_error = $4,
		     next_run_at = $5, last_run_at = $6, updated_at = $7
		 WHERE name = $1 AND status <> $8`,
		req.Name, req.Status, req.ConsecutiveFailures, req.LastError,
		req.NextRunAt, req.LastRunAt, req.UpdatedAt, model.WorkStatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to update work request run state: %w", err)
	}
	return nil
}

// DeleteCancelledBefore はcutoffより前に更新されたキャンセル済みワーク要求を削除する。
func (s *PostgresWorkRequestStore) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM work_requests WHERE status = $1 AND updated_at < $2`,
		model.WorkStatusCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cancelled work requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func collectWorkRequests(rows *sql.Rows) ([]*model.WorkRequest, error) {
	var reqs []*model.WorkRequest
	for rows.Next() {
		req, err := scanWorkRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work requests: %w", err)
	}
	return reqs, nil
}
