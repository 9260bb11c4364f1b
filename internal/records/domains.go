package records

import (
	"log/slog"
	"strings"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/repository"
	"github.com/hitoshi/syncbook/internal/security"
)

// NewUserRepository はユーザー用のRepositoryを生成する。
// 書き込み前に各フィールドの前後の空白を取り除く。
func NewUserRepository(
	local repository.UserStore,
	remote RemoteSource[model.User],
	cache CacheObserver,
	logger *slog.Logger,
) *Repository[model.User] {
	return NewRepository("users", "User", local, remote, logger,
		WithNormalizer(normalizeUser),
		WithCacheObserver[model.User](cache),
	)
}

// NewNoteRepository はメモ用のRepositoryを生成する。
// 本文はリモートへの書き込み前にサニタイズする。
func NewNoteRepository(
	local repository.NoteStore,
	remote RemoteSource[model.Note],
	sanitizer *security.NoteSanitizer,
	cache CacheObserver,
	logger *slog.Logger,
) *Repository[model.Note] {
	return NewRepository("notes", "Note", local, remote, logger,
		WithNormalizer(func(n model.Note) model.Note {
			n.Title = strings.TrimSpace(n.Title)
			n.Content = sanitizer.Sanitize(n.Content)
			return n
		}),
		WithCacheObserver[model.Note](cache),
	)
}

func normalizeUser(u model.User) model.User {
	u.Name = strings.TrimSpace(u.Name)
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	u.Phone = strings.TrimSpace(u.Phone)
	u.Website = strings.TrimSpace(u.Website)
	return u
}
