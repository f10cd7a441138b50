package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// defaultGeminiEndpoint はGemini APIのベースURL。
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel はGeminiの既定モデル。
	DefaultGeminiModel = "gemini-2.5-flash"
)

// GeminiProvider はGoogle Gemini APIのプロバイダ。
type GeminiProvider struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider はGeminiProviderを生成する。modelが空の場合は既定モデルを使う。
func NewGeminiProvider(httpClient *http.Client, logger *slog.Logger, apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultGeminiEndpoint,
	}
}

// Name はプロバイダ名を返す。
func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// text は最初の候補の全パートを連結したテキストを返す。
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p *GeminiProvider) buildRequest(req Request) geminiRequest {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.JSON {
		body.GenerationConfig = &geminiGenerationConfig{ResponseMimeType: "application/json"}
	}
	return body
}

func (p *GeminiProvider) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// Complete はgenerateContentを呼び出し、生成テキストを返す。
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.endpoint, url.PathEscape(p.modelFor(req)), url.QueryEscape(p.apiKey))

	resp, err := postJSON(ctx, p.httpClient, p.Name(), endpoint, nil, p.buildRequest(req))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("Geminiレスポンスのパースに失敗しました: %w", err)
	}
	if len(body.Candidates) == 0 {
		return "", errors.New("Geminiが候補を返しませんでした")
	}

	return body.text(), nil
}

// Stream はstreamGenerateContent（SSE）を呼び出し、断片をチャネルへ送る。
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		p.endpoint, url.PathEscape(p.modelFor(req)), url.QueryEscape(p.apiKey))

	resp, err := postJSON(ctx, p.httpClient, p.Name(), endpoint, nil, p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := readSSE(resp.Body, func(data []byte) (bool, error) {
			var event geminiResponse
			if err := json.Unmarshal(data, &event); err != nil {
				p.logger.Warn("Geminiストリームの断片をパースできませんでした",
					slog.String("error", err.Error()),
				)
				return false, nil
			}
			if text := event.text(); text != "" {
				if !sendChunk(ctx, ch, Chunk{Text: text}) {
					return true, nil
				}
			}
			return false, nil
		})
		if err != nil {
			sendChunk(ctx, ch, Chunk{Err: err})
		}
	}()

	return ch, nil
}
