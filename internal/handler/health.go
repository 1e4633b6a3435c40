package handler

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout はストア疎通確認の上限時間。
const healthTimeout = 2 * time.Second

// NewHealthHandler はストアの疎通を確認するヘルスチェックハンドラーを返す。
// dbがnilの場合はプロセスの生存のみを返す。
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
