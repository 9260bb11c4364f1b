package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// sseKeepAlive はイベントがない間にコメント行を送る間隔。
const sseKeepAlive = 15 * time.Second

// streamEvents はchの値をServer-Sent Eventsとして書き出す。
// firstがnilでなければ最初に送る。クライアントの切断かchのクローズで終了する。
func streamEvents[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, event string, first *T, ch <-chan T) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// サーバーのWriteTimeoutでストリームが切断されないようにする
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("書き込み期限を解除できません", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v T) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			logger.Error("イベントのエンコードに失敗しました", slog.String("error", err.Error()))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if first != nil && !send(*first) {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			if !send(v) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
