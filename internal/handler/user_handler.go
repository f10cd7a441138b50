package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/scriptgo/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーと保存済みスクリプト・セッションを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はアカウント操作のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。cookiesはセッションCookieの削除に使う。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{service: service, cookies: cookies}
}

// Withdraw は退会させ、セッションCookieを消して204を返す。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.clearCookie(w, middleware.SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}

// SetupUserRoutes はユーザー管理のルーティングを設定する。
func SetupUserRoutes(service UserServiceInterface, cookies AuthHandlerConfig) *chi.Mux {
	h := NewUserHandler(service, cookies)

	r := chi.NewRouter()
	r.Route("/api/users", func(r chi.Router) {
		r.Delete("/me", h.Withdraw)
	})
	return r
}
