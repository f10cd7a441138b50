package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// quietPaths はアクセスログをDebugに落とすパス。ヘルスチェックが数秒ごとに来るため。
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// responseRecorder はステータスコードと書き込んだバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.status = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Flush はSSE応答のために下位のFlusherへ委譲する。
func (rr *responseRecorder) Flush() {
	rr.wroteHeader = true
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap はhttp.ResponseController用。
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// accessLogEntry は内側のミドルウェアがアクセスログに項目を足すための置き場。
// セッションミドルウェアは派生したコンテキストでハンドラーを呼ぶため、
// 外側のロガーはポインタ経由でユーザーIDを受け取る。
type accessLogEntry struct {
	userID string
}

var accessLogContextKey = contextKey("access_log")

// annotateAccessLog はコンテキストにアクセスログの置き場があればユーザーIDを記録する。
func annotateAccessLog(ctx context.Context, userID string) {
	if e, ok := ctx.Value(accessLogContextKey).(*accessLogEntry); ok {
		e.userID = userID
	}
}

// NewLoggingMiddleware はリクエストごとにJSONのアクセスログを1行出力するミドルウェアを返す。
// 5xxはError、4xxはWarn、それ以外はInfoで出す。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessLogEntry{}
			rec := newResponseRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessLogContextKey, entry)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if requestID := RequestIDFromContext(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if entry.userID != "" {
				attrs = append(attrs, slog.String("user_id", entry.userID))
			}

			logger.LogAttrs(r.Context(), accessLogLevel(r.URL.Path, rec.status), "http_request", attrs...)
		})
	}
}

func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
