package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const (
	// defaultOpenAIEndpoint はOpenAI APIのベースURL。
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	// DefaultOpenAIModel はOpenAIの既定モデル。
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIProvider はOpenAI Chat Completions APIのプロバイダ。
type OpenAIProvider struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider はOpenAIProviderを生成する。modelが空の場合は既定モデルを使う。
func NewOpenAIProvider(httpClient *http.Client, logger *slog.Logger, apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultOpenAIEndpoint,
	}
}

// Name はプロバイダ名を返す。
func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *OpenAIProvider) buildRequest(req Request, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	body := openAIRequest{
		Model:    model,
		Messages: []openAIMessage{{Role: "user", Content: req.Prompt}},
		Stream:   stream,
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return body
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// Complete はchat/completionsを呼び出し、最初の選択肢の本文を返す。
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := postJSON(ctx, p.httpClient, p.Name(), p.endpoint+"/chat/completions", p.headers(), p.buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("OpenAIレスポンスのパースに失敗しました: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", errors.New("OpenAIが選択肢を返しませんでした")
	}

	return body.Choices[0].Message.Content, nil
}

// Stream はstream=trueでchat/completionsを呼び出し、deltaの本文を順に送る。
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	resp, err := postJSON(ctx, p.httpClient, p.Name(), p.endpoint+"/chat/completions", p.headers(), p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := readSSE(resp.Body, func(data []byte) (bool, error) {
			if string(data) == "[DONE]" {
				return true, nil
			}
			var event openAIResponse
			if err := json.Unmarshal(data, &event); err != nil {
				p.logger.Warn("OpenAIストリームの断片をパースできませんでした",
					slog.String("error", err.Error()),
				)
				return false, nil
			}
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				return false, nil
			}
			if !sendChunk(ctx, ch, Chunk{Text: event.Choices[0].Delta.Content}) {
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			sendChunk(ctx, ch, Chunk{Err: err})
		}
	}()

	return ch, nil
}
