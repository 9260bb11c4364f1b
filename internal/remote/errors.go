package remote

import (
	"errors"
	"fmt"
)

// NetworkError は通信が成立しなかった失敗を表す。
// 接続失敗、タイムアウト、レスポンス読み取り失敗、サーキットブレーカーの遮断を含む。
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError はリモートサービスが2xx以外のステータスを返したことを表す。
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// IsNetworkError はerrがNetworkErrorを含むかを判定する。
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode はerrがStatusErrorを含む場合にそのステータスコードを返す。
func StatusCode(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

// retryable は同じリクエストを再送する価値がある失敗かを判定する。
func retryable(err error) bool {
	if IsNetworkError(err) {
		return true
	}
	code, ok := StatusCode(err)
	return ok && (code == 429 || code >= 500)
}
