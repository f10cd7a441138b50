// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/scriptgo/internal/model"
)

// SessionCookieName はログインセッションIDを運ぶHttpOnly Cookieの名前。
const SessionCookieName = "scriptgo_session"

type contextKey string

var userIDContextKey = contextKey("user_id")

// ErrNoUserInContext はセッションミドルウェアを通っていないリクエストで返る。
var ErrNoUserInContext = errors.New("user ID not found in context")

// SessionFinder はセッションの検索に必要なインターフェース。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はセッションCookieを検証し、ユーザーIDをコンテキストに載せる。
// Cookieが無い・期限切れ・検索失敗のいずれも401のUNAUTHORIZEDを返す。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return newSessionMiddleware(finder, time.Now)
}

func newSessionMiddleware(finder SessionFinder, now func() time.Time) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			session, err := finder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w)
				return
			}
			// リポジトリ側でも期限を見ているが、時計のずれに備えてここでも確認する
			if session == nil || !session.Active(now()) {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// UserIDFromContext はセッションミドルウェアが載せたユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}

// ContextWithUserID はユーザーIDを載せたコンテキストを返す。アクセスログにも記録される。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	annotateAccessLog(ctx, userID)
	return context.WithValue(ctx, userIDContextKey, userID)
}
