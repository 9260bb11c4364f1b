package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/syncbook/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 問い合わせ時にログと突き合わせられるようリクエストIDを含める。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// 定義済みエラーコード以外でミドルウェアが返すコード
const (
	ErrCodeInternal  = "INTERNAL_ERROR"
	ErrCodeRateLimit = "RATE_LIMIT_EXCEEDED"
)

// StatusForAPIError はエラーコードに対応するHTTPステータスを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotFound, model.ErrCodeWorkNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidSchedule, model.ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case model.ErrCodeNetwork, model.ErrCodeServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はerrを統一エラーフォーマットで書き込む。
// APIErrorでないエラーは詳細を伏せて内部エラーとして返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w, r)
		return
	}
	WriteErrorResponse(w, r, StatusForAPIError(apiErr), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusInternalServerError, &model.APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
