package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicを回復して500レスポンスを返すミドルウェアを生成する。
// SSEのように既にレスポンスを書き始めている場合はログのみ記録し、接続を閉じる。
// http.ErrAbortHandlerはサーバーに処理させるため再panicする。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				started := responseStarted(w)
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("panic", rec),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", started),
					slog.String("stack", string(debug.Stack())),
				)
				if started {
					panic(http.ErrAbortHandler)
				}
				WriteInternalServerError(w, r)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// responseStarted はロギングミドルウェアの記録からレスポンスの書き込み開始を判定する。
func responseStarted(w http.ResponseWriter) bool {
	sr, ok := w.(*statusRecorder)
	return ok && sr.written
}
