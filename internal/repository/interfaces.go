// Package repository はローカルストア（データ永続化）のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/syncbook/internal/model"
)

// LocalStore はレコードのローカル永続化インターフェース。
// 単一プロセスからの単一ライターを前提とする。
type LocalStore[T model.Record] interface {
	// GetAll は全レコードをID昇順で取得する。
	GetAll(ctx context.Context) ([]T, error)

	// GetByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
	GetByID(ctx context.Context, id int64) (*T, error)

	// Search は部分一致でレコードを検索する。大文字小文字は区別しない。
	Search(ctx context.Context, query string) ([]T, error)

	// Insert はレコードを保存する。同じIDが既に存在する場合は置き換える。
	Insert(ctx context.Context, record T) error

	// InsertAll は複数レコードを同一トランザクションで保存する。
	InsertAll(ctx context.Context, records []T) error

	// Update は既存レコードを全フィールド置き換えで更新する。
	// 対象が存在しない場合は何もしない。
	Update(ctx context.Context, record T) error

	// Delete は指定IDのレコードを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id int64) error

	// DeleteAll は全レコードを削除する。
	DeleteAll(ctx context.Context) error
}

// UserStore はユーザーのローカルストア。
type UserStore = LocalStore[model.User]

// NoteStore はメモのローカルストア。
type NoteStore = LocalStore[model.Note]

// WorkRequestRepository は定期実行ワーク要求の永続化インターフェース。
type WorkRequestRepository interface {
	// FindByName は指定名のワーク要求を取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.WorkRequest, error)

	// Upsert はワーク要求を名前をキーに作成または置き換える。
	Upsert(ctx context.Context, req *model.WorkRequest) error

	// List は全ワーク要求を名前順で返す。
	List(ctx context.Context) ([]*model.WorkRequest, error)

	// ListDue はnext_run_at <= now かつキャンセルされていないワーク要求を返す。
	ListDue(ctx context.Context, now time.Time) ([]*model.WorkRequest, error)

	// UpdateRunState は実行結果（status、consecutive_failures、last_error、
	// next_run_at、last_run_at、updated_at）を更新する。
	// キャンセル済みのワーク要求は更新せず、エラーにもしない。
	UpdateRunState(ctx context.Context, req *model.WorkRequest) error

	// DeleteCancelledBefore はcutoffより前に更新されたキャンセル済みワーク要求を削除し、
	// 削除件数を返す。
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
