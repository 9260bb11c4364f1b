package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWorkRequestStore はgormを使用したワーク要求リポジトリ。
type GormWorkRequestStore struct {
	db *gorm.DB
}

// NewGormWorkRequestStore はGormWorkRequestStoreを生成する。
func NewGormWorkRequestStore(db *gorm.DB) *GormWorkRequestStore {
	return &GormWorkRequestStore{db: db}
}

// FindByName は指定名のワーク要求を取得する。見つからない場合はnilを返す。
func (s *GormWorkRequestStore) FindByName(ctx context.Context, name string) (*model.WorkRequest, error) {
	var req model.WorkRequest
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work request: %w", err)
	}
	return &req, nil
}

// Upsert はワーク要求を名前をキーに作成または置き換える。
// created_atは既存の値を維持する。
func (s *GormWorkRequestStore) Upsert(ctx context.Context, req *model.WorkRequest) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"schedule", "requires_network", "status", "consecutive_failures",
				"last_error", "next_run_at", "last_run_at", "updated_at",
			}),
		}).
		Create(req).Error
	if err != nil {
		return fmt.Errorf("failed to upsert work request: %w", err)
	}
	return nil
}

// List は全ワーク要求を名前順で返す。
func (s *GormWorkRequestStore) List(ctx context.Context) ([]*model.WorkRequest, error) {
	var reqs []*model.WorkRequest
	if err := s.db.WithContext(ctx).Order("name").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list work requests: %w", err)
	}
	return reqs, nil
}

// ListDue はnext_run_at <= now かつキャンセルされていないワーク要求を返す。
func (s *GormWorkRequestStore) ListDue(ctx context.Context, now time.Time) ([]*model.WorkRequest, error) {
	var reqs []*model.WorkRequest
	err := s.db.WithContext(ctx).
		Where("next_run_at <= ? AND status <> ?", sqliteTime(now), model.WorkStatusCancelled).
		Order("next_run_at").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due work requests: %w", err)
	}
	return reqs, nil
}

// UpdateRunState は実行結果を更新する。キャンセル済みの行は更新しない。
func (s *GormWorkRequestStore) UpdateRunState(ctx context.Context, req *model.WorkRequest) error {
	err := s.db.WithContext(ctx).
		Model(&model.WorkRequest{}).
		Where("name = ? AND status <> ?", req.Name, model.WorkStatusCancelled).
		Updates(map[string]any{
			"status":               req.Status,
			"consecutive_failures": req.ConsecutiveFailures,
			"last_error":           req.LastError,
			"next_run_at":          req.NextRunAt,
			"last_run_at":          req.LastRunAt,
			"updated_at":           req.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update work request run state: %w", err)
	}
	return nil
}

// DeleteCancelledBefore はcutoffより前に更新されたキャンセル済みワーク要求を削除する。
func (s *GormWorkRequestStore) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.WorkStatusCancelled, sqliteTime(cutoff)).
		Delete(&model.WorkRequest{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete cancelled work requests: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// sqliteTime は比較用の時刻を保存時と同じUTC秒精度に揃える。
// 時刻はテキストで保存されるため、小数秒の有無で文字列順序が崩れる。
func sqliteTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
