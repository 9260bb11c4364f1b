// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: network, server, validation, data, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNetwork         = "NETWORK_ERROR"
	ErrCodeServer          = "SERVER_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnexpected      = "UNEXPECTED_ERROR"
	ErrCodeWorkNotFound    = "WORK_NOT_FOUND"
	ErrCodeInvalidSchedule = "INVALID_SCHEDULE"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
)

// NewNetworkError はネットワーク/I/O失敗エラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("Network error: %s", reason),
		Category: "network",
		Action:   "ネットワーク接続を確認し、再読み込みしてください。",
	}
}

// NewServerError はリモートサービスがエラーステータスを返した場合のエラーを生成する。
func NewServerError(statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeServer,
		Message:  fmt.Sprintf("Server error (HTTP %d)", statusCode),
		Category: "server",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotFoundError はレコード未検出エラーを生成する。
func NewNotFoundError(kind string, id int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %d", kind, id),
		Category: "data",
		Action:   "一覧を再読み込みして、対象が存在するか確認してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Invalid record: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnexpectedError は分類できないエラーを生成する。
func NewUnexpectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnexpected,
		Message:  fmt.Sprintf("Unexpected error: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewWorkNotFoundError は指定名のワーク要求が存在しない場合のエラーを生成する。
func NewWorkNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeWorkNotFound,
		Message:  fmt.Sprintf("指定されたワークが見つかりません: %s", name),
		Category: "data",
		Action:   "ワーク名を確認してください。",
	}
}

// NewInvalidScheduleError はスケジュール式が無効な場合のエラーを生成する。
func NewInvalidScheduleError(schedule string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  fmt.Sprintf("無効なスケジュールです: %s", schedule),
		Category: "validation",
		Action:   "\"@every 15m\" 形式または5フィールドのcron式を指定してください。",
	}
}

// NewInvalidRequestError はリクエストの形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("不正なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}
