package middleware

import (
	"net/http"
	"strings"
)

var (
	corsAllowMethods  = strings.Join([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}, ", ")
	corsAllowHeaders  = strings.Join([]string{"Content-Type", csrfHeaderName, RequestIDHeader}, ", ")
	corsExposeHeaders = RequestIDHeader
)

// NewCORSMiddleware はフロントエンドのオリジンからのcredentials付きリクエストを許可する。
// Originヘッダーが許可オリジンと一致した場合のみCORSヘッダーを返す。
// プリフライト(OPTIONS)はオリジンに関わらず204で終える。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowedOrigin = strings.TrimRight(allowedOrigin, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin != "" && allowedOrigin != "" && origin == allowedOrigin {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
