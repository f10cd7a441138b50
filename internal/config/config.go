package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Generation（未設定のキーはその機能を「未設定」扱いにする）
	GeminiAPIKey        string
	GeminiModel         string
	AnthropicAPIKey     string
	AnthropicModel      string
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAICalendarModel string
	GenerationTimeout   time.Duration

	// Image
	ImageURLTemplate string
	ImageWidth       int
	ImageHeight      int

	// Email
	ResendAPIKey  string
	EmailFromName string
	SiteURL       string

	// Delivery
	DeliveryInterval    time.Duration
	DeliveryMaxPerCycle int
	DeliveryMaxAttempts int

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitGeneration int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)

	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	cfg.GeminiAPIKey = getEnvString("GOOGLE_GENERATIVE_AI_API_KEY", "")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-flash")
	cfg.AnthropicAPIKey = getEnvString("ANTHROPIC_API_KEY", "")
	cfg.AnthropicModel = getEnvString("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAICalendarModel = getEnvString("OPENAI_CALENDAR_MODEL", "gpt-4o")
	cfg.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 0)

	cfg.ImageURLTemplate = getEnvString("IMAGE_URL_TEMPLATE", "https://image.pollinations.ai/prompt/{prompt}")
	cfg.ImageWidth = getEnvInt("IMAGE_WIDTH", 1024)
	cfg.ImageHeight = getEnvInt("IMAGE_HEIGHT", 1024)

	cfg.ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	cfg.EmailFromName = getEnvString("EMAIL_FROM_NAME", "ScriptGo")
	cfg.SiteURL = strings.TrimRight(getEnvString("SITE_URL", cfg.BaseURL), "/")

	cfg.DeliveryInterval = getEnvDuration("DELIVERY_INTERVAL", 5*time.Minute)
	cfg.DeliveryMaxPerCycle = getEnvInt("DELIVERY_MAX_PER_CYCLE", 50)
	cfg.DeliveryMaxAttempts = getEnvInt("DELIVERY_MAX_ATTEMPTS", 3)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGeneration = getEnvInt("RATE_LIMIT_GENERATION", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// GenerationConfigured はいずれかのテキスト生成プロバイダのキーが設定されているかを返す。
func (c *Config) GenerationConfigured() bool {
	return c.GeminiAPIKey != "" || c.AnthropicAPIKey != "" || c.OpenAIAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
