package middleware

import "net/http"

// securityHeaders はJSON APIの全レスポンスに付けるヘッダー。
var securityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

// NewSecurityHeadersMiddleware はsecurityHeadersを付与する。
// ハンドラーが独自にCache-Controlを設定しない限りno-storeにする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
