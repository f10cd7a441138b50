package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultAnthropicModel はAnthropicの既定モデル。
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	// anthropicMaxTokens は1回の生成で許可する最大出力トークン数。
	anthropicMaxTokens = 4096
	// anthropicJSONSystemPrompt はJSONモード時のシステムプロンプト。
	// Messages APIにはresponse_formatに当たる指定が無いため指示で代替する。
	anthropicJSONSystemPrompt = "Respond with only the JSON object requested. Do not wrap it in markdown code fences and do not add any text before or after it."
)

// AnthropicProvider はAnthropic Messages APIのプロバイダ。
// 再試行はSDKに任せず、1回の呼び出しで結果を返す。
type AnthropicProvider struct {
	client anthropic.Client
	logger *slog.Logger
	model  string
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider はAnthropicProviderを生成する。
// baseURLが空でない場合はAPIのベースURLを差し替える（テスト用）。
func NewAnthropicProvider(httpClient *http.Client, logger *slog.Logger, apiKey, model, baseURL string) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		logger: logger,
		model:  model,
	}
}

// Name はプロバイダ名を返す。
func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.JSON {
		params.System = []anthropic.TextBlockParam{{Text: anthropicJSONSystemPrompt}}
	}
	return params
}

// Complete はMessages APIを呼び出し、テキストブロックを連結して返す。
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return "", p.wrapError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("Anthropicが空の応答を返しました")
	}

	return b.String(), nil
}

// Stream はストリーミングAPIを呼び出し、テキスト差分を順に送る。
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if !sendChunk(ctx, ch, Chunk{Text: text.Text}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			sendChunk(ctx, ch, Chunk{Err: p.wrapError(err)})
		}
	}()

	return ch, nil
}

// wrapError はSDKのAPIエラーをProviderErrorに変換する。
func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   p.Name(),
			StatusCode: apiErr.StatusCode,
			Message:    errorMessageFromBody([]byte(apiErr.RawJSON())),
		}
	}
	return fmt.Errorf("%s の呼び出しに失敗しました: %w", p.Name(), err)
}
