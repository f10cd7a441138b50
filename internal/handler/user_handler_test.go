package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
)

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

var testCookieConfig = AuthHandlerConfig{
	BaseURL:       "https://app.scriptgo.dev",
	CookieDomain:  "scriptgo.dev",
	CookieSecure:  true,
	SessionMaxAge: 86400,
}

func TestUserHandler_Withdraw(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"成功", "user-123", nil, http.StatusNoContent, ""},
		{"未ログイン", "", nil, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"ユーザー無し", "user-123", model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"DB障害", "user-123", errors.New("transaction failed"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			h := NewUserHandler(&mockUserService{
				withdrawFn: func(ctx context.Context, userID string) error {
					gotUserID = userID
					return tt.err
				},
			}, testCookieConfig)

			req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
			if tt.userID != "" {
				req = withUserID(req, tt.userID)
			}
			w := httptest.NewRecorder()
			h.Withdraw(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
					t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
				}
				return
			}
			if gotUserID != tt.userID {
				t.Errorf("userID = %q, want %q", gotUserID, tt.userID)
			}
		})
	}
}

func TestUserHandler_Withdraw_ClearsSessionCookie(t *testing.T) {
	router := SetupUserRoutes(&mockUserService{}, testCookieConfig)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	c := responseCookie(w, middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Fatalf("退会後にセッションCookieが削除されていない: %+v", c)
	}
	if c.Domain != "scriptgo.dev" || !c.Secure || !c.HttpOnly {
		t.Errorf("削除用Cookieの属性が発行時と異なる: %+v", c)
	}
}
