package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// APIHeaders はJSON APIの全レスポンスに付けるヘッダーの設定。
type APIHeaders struct {
	// AllowedOrigins はCORSを許可するオリジン。空ならCORSヘッダーを一切付けない。
	AllowedOrigins []string
	// AllowedMethods が空なら GET, POST, PUT, OPTIONS。
	AllowedMethods []string
	// MaxAge はプリフライト結果のキャッシュ期間。0なら10分。
	MaxAge time.Duration
}

// ParseAllowedOrigins はカンマ区切りのオリジン指定を分解する。
// "*" は受け付けず、末尾のスラッシュは落とす。
func ParseAllowedOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || o == "*" || slices.Contains(origins, o) {
			continue
		}
		origins = append(origins, o)
	}
	return origins
}

// NewAPIHeadersMiddleware はセキュリティヘッダーとCORSヘッダーを付与するミドルウェアを返す。
// Originが許可リストにある場合だけそのオリジンをそのまま返す。
// プリフライト(OPTIONS + Access-Control-Request-Method)は後段に渡さず204で終える。
func NewAPIHeadersMiddleware(cfg APIHeaders) func(next http.Handler) http.Handler {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	allowMethods := strings.Join(methods, ", ")
	maxAgeSec := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			// レスポンスはJSONとメトリクスのテキストのみ
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")

			origin := r.Header.Get("Origin")
			if len(cfg.AllowedOrigins) > 0 {
				h.Add("Vary", "Origin")
			}
			allowed := origin != "" && slices.Contains(cfg.AllowedOrigins, origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", allowMethods)
					h.Set("Access-Control-Allow-Headers", "Content-Type")
					h.Set("Access-Control-Max-Age", maxAgeSec)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
