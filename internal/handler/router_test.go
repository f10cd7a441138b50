package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
)

func TestSetupAuthRoutes(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(_ context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-me", Email: "me@example.com"}, nil
		},
	}
	router := SetupAuthRoutes(svc, testCookieConfig)

	session := &http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"}
	tests := []struct {
		name       string
		method     string
		path       string
		cookies    []*http.Cookie
		wantStatus int
	}{
		{"ログイン", http.MethodGet, "/auth/google/login", nil, http.StatusFound},
		{"コールバック", http.MethodGet, "/auth/google/callback?code=c&state=v", []*http.Cookie{stateCookie("v")}, http.StatusFound},
		{"ログアウト", http.MethodPost, "/auth/logout", []*http.Cookie{session}, http.StatusSeeOther},
		{"現在のユーザー", http.MethodGet, "/auth/me", []*http.Cookie{session}, http.StatusOK},
		{"ログアウトはPOSTのみ", http.MethodGet, "/auth/logout", nil, http.StatusMethodNotAllowed},
		{"未定義のルート", http.MethodGet, "/auth/unknown", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}
