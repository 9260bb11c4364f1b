package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/syncbook/internal/model"
)

// PostgresUserStore はPostgreSQLを使用したユーザーのローカルストア。
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore はPostgresUserStoreを生成する。
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, name, username, email, phone, website`

// GetAll は全ユーザーをID昇順で取得する。
func (s *PostgresUserStore) GetAll(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// GetByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Name, &user.Username, &user.Email, &user.Phone, &user.Website)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// Search は名前・ユーザー名・メールアドレスの部分一致でユーザーを検索する。
func (s *PostgresUserStore) Search(ctx context.Context, query string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1
		 ORDER BY id`,
		likePattern(query),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

const upsertUserSQL = `INSERT INTO users (id, name, username, email, phone, website)
	 VALUES ($1, $2, $3, $4, $5, $6)
	 ON CONFLICT (id) DO UPDATE SET
	     name = EXCLUDED.name, username = EXCLUDED.username, email = EXCLUDED.email,
	     phone = EXCLUDED.phone, website = EXCLUDED.website`

// Insert はユーザーを保存する。同じIDが既に存在する場合は置き換える。
func (s *PostgresUserStore) Insert(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx, upsertUserSQL,
		user.ID, user.Name, user.Username, user.Email, user.Phone, user.Website,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// InsertAll は複数ユーザーを同一トランザクションで保存する。
func (s *PostgresUserStore) InsertAll(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, user := range users {
		_, err := tx.ExecContext(ctx, upsertUserSQL,
			user.ID, user.Name, user.Username, user.Email, user.Phone, user.Website,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user %d: %w", user.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は既存ユーザーを全フィールド置き換えで更新する。
func (s *PostgresUserStore) Update(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = $2, username = $3, email = $4, phone = $5, website = $6
		 WHERE id = $1`,
		user.ID, user.Name, user.Username, user.Email, user.Phone, user.Website,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Delete は指定IDのユーザーを削除する。
func (s *PostgresUserStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// DeleteAll は全ユーザーを削除する。
func (s *PostgresUserStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return fmt.Errorf("failed to delete all users: %w", err)
	}
	return nil
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Phone, &u.Website); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
