package records

import (
	"context"
	"errors"

	"github.com/hitoshi/syncbook/internal/model"
	"github.com/hitoshi/syncbook/internal/remote"
)

// classify はバックエンドのエラーをAPIErrorに変換する。
// コンテキストのキャンセルはそのまま返し、呼び出し元が破棄できるようにする。
// 一時的な失敗と恒久的な失敗は区別しない。
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr *remote.NetworkError
	if errors.As(err, &netErr) {
		return model.NewNetworkError(netErr.Err.Error())
	}
	if code, ok := remote.StatusCode(err); ok {
		return model.NewServerError(code)
	}

	return model.NewUnexpectedError(err.Error())
}
