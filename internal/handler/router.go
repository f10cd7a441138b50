package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/scriptgo/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータスを記録しない
	CSRF              *middleware.CSRFConfig    // nilの場合はCSRF検証を行わない

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 生成
	GenerationService GenerationServiceInterface

	// スクリプト
	ScriptService ScriptServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Metrics → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 生成系ルートにはさらに RateLimit(Generation) を適用する。
// 認証ルート（/auth/*）と運用ルートはセッションチェックの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	// CORS ミドルウェア（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	genHandler := NewGenerationHandler(deps.GenerationService, logger)
	scriptHandler := NewScriptHandler(deps.ScriptService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", Health(deps.HealthChecker))
	if deps.CSRF != nil {
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(*deps.CSRF))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		if deps.CSRF != nil {
			r.Use(middleware.NewCSRFMiddleware(*deps.CSRF))
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)

		// 生成（生成専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GenerationMiddleware())

			r.Post("/api/generate", genHandler.Stream)
			r.Post("/api/scripts/generate", genHandler.GenerateScript)
			r.Post("/api/calendar/generate", genHandler.GenerateCalendar)
			r.Post("/api/visuals/generate", genHandler.GenerateVisuals)
		})

		r.Post("/api/calendar/save", scriptHandler.SaveCalendar)

		// スクリプト管理
		r.Route("/api/scripts", func(r chi.Router) {
			r.Get("/", scriptHandler.ListScripts)
			r.Post("/", scriptHandler.SaveScript)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", scriptHandler.GetScript)
				r.Put("/", scriptHandler.UpdateScript)
				r.Delete("/", scriptHandler.DeleteScript)
				r.Post("/email", scriptHandler.EmailScript)
			})
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// SetupAuthRoutes は認証関連のルーティングを設定する。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) *chi.Mux {
	h := NewAuthHandler(service, config)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
	return r
}
