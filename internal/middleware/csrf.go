package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/scriptgo/internal/model"
)

const (
	// CSRFCookieName はダブルサブミット用トークンのCookie名。
	// フロントエンドが読んでヘッダーに載せるためHttpOnlyにしない。
	CSRFCookieName = "scriptgo_csrf"

	csrfHeaderName   = "X-CSRF-Token"
	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

// CSRFConfig はCSRF Cookieの属性。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

func (c CSRFConfig) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewCSRFMiddleware はダブルサブミットCookie方式でCSRFを検証する。
// GET/HEAD/OPTIONSは検証せず、トークンCookieが無ければ発行する。
// それ以外はCookieとX-CSRF-Tokenヘッダーの一致を求め、不一致は403のCSRF_INVALID。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if _, err := r.Cookie(CSRFCookieName); err != nil {
					if token, err := generateCSRFToken(); err == nil {
						config.setCookie(w, token)
					} else {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := checkCSRF(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkCSRF は検証に失敗した理由を返す。成功時は空文字。
func checkCSRF(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラー。
// Cookieのトークンを返し、無ければ発行してから返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(CSRFCookieName); err == nil {
			token = cookie.Value
		}
		if token == "" {
			var err error
			if token, err = generateCSRFToken(); err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			config.setCookie(w, token)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
