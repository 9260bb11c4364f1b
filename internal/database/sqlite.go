package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/gorm"
)

// OpenSQLite はSQLiteデータベースをgorm経由で開く。
// dsnには "file:syncbook.db" や ":memory:" を指定する。
// 単一ライター前提のため接続プールは1本に制限する。
// クエリログはlogへ出力し、出力するかどうかはlogのレベルで決まる。
func OpenSQLite(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(gormlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log),
		// 時刻はUTC秒精度で保存し、文字列比較での順序を保つ
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Second)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=wal; PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	return db, nil
}

// AutoMigrateSQLite はSQLiteのスキーマをモデル定義に合わせて作成・更新する。
func AutoMigrateSQLite(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Note{}, &model.WorkRequest{}); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}
