package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/syncbook/internal/model"
)

// WorkServiceInterface はワークハンドラーが必要とするスケジューラの操作。
type WorkServiceInterface interface {
	// List は全ワーク要求を返す。
	List(ctx context.Context) ([]*model.WorkRequest, error)
	// Cancel はワーク要求をキャンセルする。
	Cancel(ctx context.Context, name string) error
}

// WorkHandler は定期実行ワークのHTTPハンドラー。
type WorkHandler struct {
	service WorkServiceInterface
}

// NewWorkHandler はWorkHandlerを生成する。
func NewWorkHandler(service WorkServiceInterface) *WorkHandler {
	return &WorkHandler{service: service}
}

// ListWork はワーク要求の一覧を返す。
// GET /api/work
func (h *WorkHandler) ListWork(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*model.WorkRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// CancelWork はワーク要求をキャンセルする。
// POST /api/work/{name}/cancel
func (h *WorkHandler) CancelWork(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.Cancel(r.Context(), name); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
