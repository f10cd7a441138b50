// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
)

const (
	oauthStateCookieName = "scriptgo_oauth_state"
	loginNextCookieName  = "scriptgo_next"
	oauthFlowMaxAge      = 10 * 60

	defaultLoginNext  = "/dashboard"
	authErrorPath     = "/auth/auth-code-error"
	maxLoginNextBytes = 512
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string // ログイン後のリダイレクト先となるフロントエンドのURL
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // 秒
}

// AuthHandler はGoogleログインとセッションCookieを扱う。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{service: service, config: config}
}

// meResponse はGET /api/me のレスポンス。
type meResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Login はstateとログイン後の遷移先をCookieに保存し、Googleの認可画面へ送る。
// GET /auth/google/login?next=/dashboard/scripts
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.config.setCookie(w, oauthStateCookieName, state, oauthFlowMaxAge)
	h.config.setCookie(w, loginNextCookieName, sanitizeNext(r.URL.Query().Get("next")), oauthFlowMaxAge)

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

// Callback は認可コードをセッションに交換し、セッションCookieを発行する。
// 失敗した場合はフロントエンドのエラーページへ送る。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := defaultLoginNext
	if c, err := r.Cookie(loginNextCookieName); err == nil {
		next = sanitizeNext(c.Value)
	}
	h.config.clearCookie(w, oauthStateCookieName)
	h.config.clearCookie(w, loginNextCookieName)

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != q.Get("state") {
		slog.Warn("oauth state mismatch", slog.String("request_id", middleware.RequestIDFromContext(r.Context())))
		h.redirectToFrontend(w, r, authErrorPath)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		slog.Info("oauth consent denied", slog.String("error", errParam))
		h.redirectToFrontend(w, r, authErrorPath)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectToFrontend(w, r, authErrorPath)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		h.redirectToFrontend(w, r, authErrorPath)
		return
	}

	h.config.setCookie(w, middleware.SessionCookieName, session.ID, h.config.SessionMaxAge)
	h.redirectToFrontend(w, r, next)
}

// Logout はセッションを破棄してCookieを消す。サービス側の失敗でもCookieは消す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" {
		if err := h.service.Logout(r.Context(), c.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	h.config.clearCookie(w, middleware.SessionCookieName)
	h.redirectToFrontend(w, r, "/")
}

// Me はログイン中のユーザーを返す。
// GET /api/me, GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || c.Value == "" {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), c.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		DisplayName: user.DisplayName(),
		CreatedAt:   user.CreatedAt,
	})
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, path string) {
	status := http.StatusFound
	if r.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, h.config.BaseURL+path, status)
}

// setCookie はHttpOnlyのCookieを設定する。フロントエンドから読むCookieはここで扱わない。
func (c AuthHandlerConfig) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c AuthHandlerConfig) clearCookie(w http.ResponseWriter, name string) {
	c.setCookie(w, name, "", -1)
}

// sanitizeNext はログイン後の遷移先を同一オリジンの絶対パスに限定する。
// それ以外は /dashboard にする。
func sanitizeNext(next string) string {
	if next == "" || len(next) > maxLoginNextBytes {
		return defaultLoginNext
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return defaultLoginNext
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return defaultLoginNext
	}
	return u.RequestURI()
}

// generateState はOAuthのstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
