package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/scriptgo/internal/auth"
	"github.com/hitoshi/scriptgo/internal/config"
	"github.com/hitoshi/scriptgo/internal/database"
	"github.com/hitoshi/scriptgo/internal/generation"
	"github.com/hitoshi/scriptgo/internal/handler"
	"github.com/hitoshi/scriptgo/internal/llm"
	"github.com/hitoshi/scriptgo/internal/logger"
	"github.com/hitoshi/scriptgo/internal/metrics"
	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/repository"
	"github.com/hitoshi/scriptgo/internal/script"
	"github.com/hitoshi/scriptgo/internal/security"
	"github.com/hitoshi/scriptgo/internal/user"
	"github.com/hitoshi/scriptgo/internal/visual"
	"github.com/hitoshi/scriptgo/internal/worker/cleanup"
	"github.com/hitoshi/scriptgo/internal/worker/delivery"
)

// emailHTTPTimeout はメール送信APIへのリクエストタイムアウト。
const emailHTTPTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheckは設定を読まずにローカルの /health だけを見る
	if !cmd.NeedsDatabase() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("generation_configured", cfg.GenerationConfigured()),
		slog.Bool("email_configured", cfg.ResendAPIKey != ""),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, cmd)
	}
}

// llmConfig は設定から生成クライアントの設定を組み立てる。
func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIJSONModel: cfg.OpenAICalendarModel,
		Timeout:         cfg.GenerationTimeout,
	}
}

// newNotifier はメール送信の依存関係を組み立てる。
// RESEND_API_KEYが未設定の場合も生成し、送信時に「未設定」を返す。
func newNotifier(cfg *config.Config, collector metrics.MetricsCollector) *notify.Notifier {
	resend := notify.NewResendClient(
		&http.Client{Timeout: emailHTTPTimeout},
		logger.Component("resend"),
		cfg.ResendAPIKey,
	)
	return notify.NewNotifier(resend, security.NewContentSanitizer(), notify.Options{
		FromName: cfg.EmailFromName,
		SiteURL:  cfg.SiteURL,
	}, collector, logger.Component("notify"))
}

// newMetrics はプロセス・Goランタイムのメトリクスを含むレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, dbPool(cfg), database.DefaultConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established", slog.Int("max_open_conns", cfg.DBMaxOpenConns))

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	scriptRepo := repository.NewPostgresScriptRepo(db)

	// 3. メトリクス
	registry, collector := newMetrics()

	// 4. 生成
	llmClient := llm.NewClient(llmConfig(cfg), logger.Component("llm"))
	visualGen := visual.NewGenerator(llmClient, logger.Component("visual"))
	genService := generation.NewService(llmClient, visualGen, visual.ImageURLBuilder{
		Template: cfg.ImageURLTemplate,
		Width:    cfg.ImageWidth,
		Height:   cfg.ImageHeight,
	}, collector, logger.Component("generation"))

	// 5. 通知
	notifier := newNotifier(cfg, collector)
	dispatcher := notify.NewDispatcher(notifier, 0, logger.Component("notify"))

	// 6. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	authService.SetWelcomeNotifier(dispatcher)

	scriptService := script.NewService(scriptRepo, userRepo, notifier, logger.Component("script"))
	userService := user.NewService(userRepo, sessionRepo, scriptRepo)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGeneration),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(registry),
		StatusRecorder:    collector,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: &middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		GenerationService: genService,
		ScriptService:     scriptService,
		UserService:       userService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// ストリーミング生成はWriteTimeoutを超えうるため、生成タイムアウトに余裕を足す
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.GenerationTimeout),
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 送信中のウェルカムメールを待つ
	dispatcher.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// writeTimeout はHTTPサーバーのWriteTimeoutを返す。
// 生成タイムアウト未指定時はストリーミングを考慮して長めに取る。
func writeTimeout(generationTimeout time.Duration) time.Duration {
	if generationTimeout <= 0 {
		return 5 * time.Minute
	}
	return generationTimeout + 15*time.Second
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、予約配信ジョブとセッションクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, dbPool(cfg), database.DefaultConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	scriptRepo := repository.NewPostgresScriptRepo(db)

	// 3. ジョブの初期化
	notifier := newNotifier(cfg, nil)
	deliveryJob := delivery.NewJob(scriptRepo, userRepo, notifier, nil, logger.Component("delivery"), delivery.Config{
		Interval:    cfg.DeliveryInterval,
		MaxPerCycle: cfg.DeliveryMaxPerCycle,
		MaxAttempts: cfg.DeliveryMaxAttempts,
	})
	cleanupJob := cleanup.NewJob(repository.NewPostgresSessionRepo(db), logger.Component("cleanup"))

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("delivery_interval", cfg.DeliveryInterval),
		slog.Int("delivery_max_per_cycle", cfg.DeliveryMaxPerCycle),
		slog.Int("delivery_max_attempts", cfg.DeliveryMaxAttempts),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cleanupJob.Start(ctx, cleanup.DefaultInterval)
	}()
	go func() {
		defer wg.Done()
		deliveryJob.Start(ctx)
	}()
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	res, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if !res.Applied() {
		slog.Info("database schema is up to date", slog.Uint64("version", uint64(res.To)))
		return nil
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(res.From)),
		slog.Uint64("to_version", uint64(res.To)),
	)
	return nil
}

// dbPool は設定からコネクションプールの設定を組み立てる。
func dbPool(cfg *config.Config) database.PoolConfig {
	return database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
