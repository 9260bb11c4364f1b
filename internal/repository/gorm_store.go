package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/syncbook/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore はgormを使用した汎用ローカルストア。
// SQLite（gormlite）での利用を想定する。テーブル名はgormの命名規則に従う。
type GormStore[T model.Record] struct {
	db            *gorm.DB
	searchColumns []string
}

// NewGormStore はGormStoreを生成する。
// searchColumnsはSearchで部分一致対象とするカラム名。
func NewGormStore[T model.Record](db *gorm.DB, searchColumns ...string) *GormStore[T] {
	return &GormStore[T]{db: db, searchColumns: searchColumns}
}

// NewGormUserStore はユーザー用のGormStoreを生成する。
func NewGormUserStore(db *gorm.DB) *GormStore[model.User] {
	return NewGormStore[model.User](db, "name", "username", "email")
}

// NewGormNoteStore はメモ用のGormStoreを生成する。
func NewGormNoteStore(db *gorm.DB) *GormStore[model.Note] {
	return NewGormStore[model.Note](db, "title", "content")
}

// GetAll は全レコードをID昇順で取得する。
func (s *GormStore[T]) GetAll(ctx context.Context) ([]T, error) {
	records := []T{}
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// GetByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
func (s *GormStore[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	var record T
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record by ID: %w", err)
	}
	return &record, nil
}

// Search は検索対象カラムの部分一致でレコードを検索する。
// SQLiteのLIKEはASCII範囲で大文字小文字を区別しない。
func (s *GormStore[T]) Search(ctx context.Context, query string) ([]T, error) {
	records := []T{}
	if len(s.searchColumns) == 0 {
		return records, nil
	}

	conds := make([]string, len(s.searchColumns))
	args := make([]any, len(s.searchColumns))
	pattern := likePattern(query)
	for i, col := range s.searchColumns {
		conds[i] = col + ` LIKE ? ESCAPE '\'`
		args[i] = pattern
	}

	err := s.db.WithContext(ctx).
		Where(strings.Join(conds, " OR "), args...).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	return records, nil
}

// Insert はレコードを保存する。同じIDが既に存在する場合は置き換える。
func (s *GormStore[T]) Insert(ctx context.Context, record T) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// InsertAll は複数レコードを同一トランザクションで保存する。
func (s *GormStore[T]) InsertAll(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}
	return nil
}

// Update は既存レコードを全フィールド置き換えで更新する。
// 対象が存在しない場合は何もしない。
func (s *GormStore[T]) Update(ctx context.Context, record T) error {
	err := s.db.WithContext(ctx).
		Model(&record).
		Where("id = ?", record.RecordID()).
		Select("*").
		Updates(&record).Error
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

// Delete は指定IDのレコードを削除する。
func (s *GormStore[T]) Delete(ctx context.Context, id int64) error {
	var record T
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&record).Error; err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// DeleteAll は全レコードを削除する。
func (s *GormStore[T]) DeleteAll(ctx context.Context) error {
	var record T
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&record).Error; err != nil {
		return fmt.Errorf("failed to delete all records: %w", err)
	}
	return nil
}
