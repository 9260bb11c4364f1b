package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/syncbook/internal/model"
)

// PostgresNoteStore はPostgreSQLを使用したメモのローカルストア。
type PostgresNoteStore struct {
	db *sql.DB
}

// NewPostgresNoteStore はPostgresNoteStoreを生成する。
func NewPostgresNoteStore(db *sql.DB) *PostgresNoteStore {
	return &PostgresNoteStore{db: db}
}

// GetAll は全メモをID昇順で取得する。
func (s *PostgresNoteStore) GetAll(ctx context.Context) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content FROM notes ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// GetByID は指定IDのメモを取得する。見つからない場合はnilを返す。
func (s *PostgresNoteStore) GetByID(ctx context.Context, id int64) (*model.Note, error) {
	note := &model.Note{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content FROM notes WHERE id = $1`,
		id,
	).Scan(&note.ID, &note.Title, &note.Content)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note by ID: %w", err)
	}

	return note, nil
}

// Search はタイトル・本文の部分一致でメモを検索する。
func (s *PostgresNoteStore) Search(ctx context.Context, query string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content FROM notes
		 WHERE title ILIKE $1 OR content ILIKE $1
		 ORDER BY id`,
		likePattern(query),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

const upsertNoteSQL = `INSERT INTO notes (id, title, content) VALUES ($1, $2, $3)
	 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, content = EXCLUDED.content`

// Insert はメモを保存する。同じIDが既に存在する場合は置き換える。
func (s *PostgresNoteStore) Insert(ctx context.Context, note model.Note) error {
	if _, err := s.db.ExecContext(ctx, upsertNoteSQL, note.ID, note.Title, note.Content); err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// InsertAll は複数メモを同一トランザクションで保存する。
func (s *PostgresNoteStore) InsertAll(ctx context.Context, notes []model.Note) error {
	if len(notes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, note := range notes {
		if _, err := tx.ExecContext(ctx, upsertNoteSQL, note.ID, note.Title, note.Content); err != nil {
			return fmt.Errorf("failed to insert note %d: %w", note.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は既存メモを全フィールド置き換えで更新する。
func (s *PostgresNoteStore) Update(ctx context.Context, note model.Note) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = $2, content = $3 WHERE id = $1`,
		note.ID, note.Title, note.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return nil
}

// Delete は指定IDのメモを削除する。
func (s *PostgresNoteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

// DeleteAll は全メモを削除する。
func (s *PostgresNoteStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("failed to delete all notes: %w", err)
	}
	return nil
}

func scanNotes(rows *sql.Rows) ([]model.Note, error) {
	notes := []model.Note{}
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}
