package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Resource はRESTリソース1種類分のエンドポイントをまとめたもの。
// 例: /users に対して List は GET /users、Get は GET /users/{id}。
type Resource[T any] struct {
	client *Client
	name   string
	path   string
}

// NewResource はResourceを生成する。pathは "/users" のようなコレクションのパス。
func NewResource[T any](client *Client, path string) *Resource[T] {
	path = "/" + strings.Trim(path, "/")
	return &Resource[T]{
		client: client,
		name:   strings.TrimPrefix(path, "/"),
		path:   path,
	}
}

// Name はリソース名（"users" など）を返す。
func (r *Resource[T]) Name() string {
	return r.name
}

// List はコレクション全体を取得する。
func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	items := []T{}
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodGet, path: r.path}, &items)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Get は指定IDのレコードを取得する。404の場合はnilを返す。
func (r *Resource[T]) Get(ctx context.Context, id int64) (*T, error) {
	var item T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodGet, path: r.itemPath(id)}, &item)
	if code, ok := StatusCode(err); ok && code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create はレコードを作成し、サーバーが採番したIDを含むレコードを返す。
func (r *Resource[T]) Create(ctx context.Context, item T) (T, error) {
	var created T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodPost, path: r.path, body: item}, &created)
	if err != nil {
		var zero T
		return zero, err
	}
	return created, nil
}

// Update は指定IDのレコードを全フィールド置き換えで更新する。
func (r *Resource[T]) Update(ctx context.Context, id int64, item T) (T, error) {
	var updated T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodPut, path: r.itemPath(id), body: item}, &updated)
	if err != nil {
		var zero T
		return zero, err
	}
	return updated, nil
}

// Delete は指定IDのレコードを削除する。
func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.client.do(ctx, request{resource: r.name, method: http.MethodDelete, path: r.itemPath(id)}, nil)
}

func (r *Resource[T]) itemPath(id int64) string {
	return fmt.Sprintf("%s/%d", r.path, id)
}
