// Package handler はHTTPハンドラーとルーティングを提供する。
// ViewModelの状態はJSONとServer-Sent Eventsで公開する。
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/syncbook/internal/middleware"
	"github.com/hitoshi/syncbook/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層のエラーをエラーコードに応じたHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err)
}

// parseIDParam はURLパスの{id}を正の整数として取り出す。
func parseIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidRequestError("id must be a positive integer: " + raw)
	}
	return id, nil
}

// decodeBody はJSONボディをvにデコードする。未知のフィールドは拒否する。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}
	return nil
}
