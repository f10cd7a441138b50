package middleware

import "net/http"

// StatusRecorder はレスポンスステータスの記録先。
type StatusRecorder interface {
	RecordHTTPStatus(code int)
}

// NewMetricsMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewMetricsMiddleware(recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPStatus(rec.status)
		})
	}
}
