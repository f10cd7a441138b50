package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Mode は生成結果の受け取り方。
type Mode int

const (
	// ModeText は自由テキストを一括で受け取る。
	ModeText Mode = iota
	// ModeJSON はJSONオブジェクトでの応答を要求する。
	ModeJSON
)

// NotConfiguredMessage は認証情報が未設定のときにユーザーへ返す文言。
const NotConfiguredMessage = "AI provider API key is missing. Please check your configuration."

// Config はプロバイダ選択に使う設定。
// 環境変数は読まず、呼び出し元がconfig.Configから組み立てて渡す。
type Config struct {
	GeminiAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	// OpenAIJSONModel はJSONモード（カレンダー等）でOpenAIを使う場合のモデル。
	OpenAIJSONModel string
	// Timeout は1回の生成に許す時間。0の場合はトランスポートの既定に任せる。
	Timeout time.Duration
}

// Result は一括生成の結果。
// プロバイダエラーはGoのerrorにせず、Textに埋め込んでFailed=trueで返す。
type Result struct {
	Text          string
	Provider      string
	NotConfigured bool
	Failed        bool
	Err           error // Failedの場合の元エラー（ログ・分類用）
}

// Client は設定済みプロバイダの中から固定の優先順位で1つを選んで呼び出す。
// 優先順位は Gemini > Anthropic > OpenAI。
type Client struct {
	provider  Provider
	jsonModel string
	logger    *slog.Logger
}

// NewClient は設定から生成クライアントを組み立てる。
// どの認証情報も無い場合でもエラーにはせず、未設定状態のクライアントを返す。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var provider Provider
	jsonModel := ""
	switch {
	case cfg.GeminiAPIKey != "":
		provider = NewGeminiProvider(httpClient, logger, cfg.GeminiAPIKey, cfg.GeminiModel)
	case cfg.AnthropicAPIKey != "":
		provider = NewAnthropicProvider(httpClient, logger, cfg.AnthropicAPIKey, cfg.AnthropicModel, "")
	case cfg.OpenAIAPIKey != "":
		provider = NewOpenAIProvider(httpClient, logger, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		jsonModel = cfg.OpenAIJSONModel
	}

	return NewClientWithProvider(provider, jsonModel, logger)
}

// NewClientWithProvider は任意のプロバイダでクライアントを生成する。
// providerがnilの場合は未設定状態になる。
func NewClientWithProvider(provider Provider, jsonModel string, logger *slog.Logger) *Client {
	return &Client{
		provider:  provider,
		jsonModel: jsonModel,
		logger:    logger,
	}
}

// Configured はプロバイダが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.provider != nil
}

// ProviderName は選択されたプロバイダ名を返す。未設定の場合は空文字。
func (c *Client) ProviderName() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Name()
}

func (c *Client) request(prompt string, mode Mode) Request {
	req := Request{Prompt: prompt}
	if mode == ModeJSON {
		req.JSON = true
		req.Model = c.jsonModel
	}
	return req
}

// Generate はプロンプトを送り、生成テキストを返す。
// 未設定の場合はネットワーク呼び出しを行わずNotConfiguredの結果を返す。
// プロバイダエラーはログに記録し、エラーメッセージを含むテキストとして返す。
func (c *Client) Generate(ctx context.Context, prompt string, mode Mode) Result {
	if c.provider == nil {
		return Result{Text: NotConfiguredMessage, NotConfigured: true}
	}

	text, err := c.provider.Complete(ctx, c.request(prompt, mode))
	if err != nil {
		c.logger.Error("テキスト生成に失敗しました",
			slog.String("provider", c.provider.Name()),
			slog.Int("status", StatusCodeOf(err)),
			slog.String("error", err.Error()),
		)
		return Result{
			Text:     fmt.Sprintf("Error: %s. Please check your API key and credits.", err.Error()),
			Provider: c.provider.Name(),
			Failed:   true,
			Err:      err,
		}
	}

	if strings.TrimSpace(text) == "" {
		text = "No content generated."
	}
	return Result{Text: text, Provider: c.provider.Name()}
}

// CompleteJSON はJSONモードで生成し、生テキストを返す。
// 構造化生成の呼び出し元がエラー種別で分岐できるよう、こちらはerrorをそのまま返す。
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	if c.provider == nil {
		return "", ErrNotConfigured
	}

	text, err := c.provider.Complete(ctx, c.request(prompt, ModeJSON))
	if err != nil {
		c.logger.Error("JSON生成に失敗しました",
			slog.String("provider", c.provider.Name()),
			slog.Int("status", StatusCodeOf(err)),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return text, nil
}

// Stream はストリーミング生成を開始する。
// 未設定の場合はErrNotConfiguredを返す。
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan Chunk, error) {
	if c.provider == nil {
		return nil, ErrNotConfigured
	}

	ch, err := c.provider.Stream(ctx, c.request(prompt, ModeText))
	if err != nil {
		c.logger.Error("ストリーミング生成の開始に失敗しました",
			slog.String("provider", c.provider.Name()),
			slog.Int("status", StatusCodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return ch, nil
}

// Accumulate はチャネルの断片をバッファに連結し、断片ごとにonChunkを呼ぶ。
// 終端エラーを受け取った場合はそれまでの連結結果とエラーを返す。
func Accumulate(ch <-chan Chunk, onChunk func(text string)) (string, error) {
	var b strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return b.String(), chunk.Err
		}
		b.WriteString(chunk.Text)
		if onChunk != nil {
			onChunk(chunk.Text)
		}
	}
	return b.String(), nil
}

// IsNotConfigured はerrが未設定エラーかを返す。
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
