// Package generation はプロンプト生成・LLM呼び出し・応答の正規化を束ねるサービス層を提供する。
package generation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/scriptgo/internal/llm"
	"github.com/hitoshi/scriptgo/internal/metrics"
	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/normalize"
	"github.com/hitoshi/scriptgo/internal/prompt"
	"github.com/hitoshi/scriptgo/internal/visual"
)

// 操作名（メトリクスとログのラベル）
const (
	opScript   = "script"
	opStream   = "stream"
	opCalendar = "calendar"
	opVisuals  = "visuals"
)

// TextClient はテキスト生成クライアントのインターフェース。
type TextClient interface {
	Generate(ctx context.Context, prompt string, mode llm.Mode) llm.Result
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (<-chan llm.Chunk, error)
	ProviderName() string
}

// VisualGenerator は絵コンテ生成のインターフェース。
type VisualGenerator interface {
	Generate(ctx context.Context, script string, req model.GenerationRequest) (*model.VisualSet, error)
}

// ScriptResult は一括生成したスクリプト。
// プロバイダエラーや未設定はTextにメッセージとして入り、フラグで区別する。
type ScriptResult struct {
	Text          string `json:"text"`
	Provider      string `json:"provider,omitempty"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
	Failed        bool   `json:"failed,omitempty"`
}

// Service は生成系ユースケースのサービス層。
type Service struct {
	client  TextClient
	visuals VisualGenerator
	images  visual.ImageURLBuilder
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	client TextClient,
	visuals VisualGenerator,
	images visual.ImageURLBuilder,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		client:  client,
		visuals: visuals,
		images:  images,
		metrics: collector,
		logger:  logger,
	}
}

// GenerateScript はスクリプトを一括生成する。
// プロバイダエラーはerrorにせず、ScriptResult.Textに埋め込んで返す。
func (s *Service) GenerateScript(ctx context.Context, req model.GenerationRequest) (*ScriptResult, error) {
	if !req.HasTopic() {
		return nil, model.NewTopicRequiredError()
	}

	start := time.Now()
	res := s.client.Generate(ctx, prompt.Script(req), llm.ModeText)
	s.metrics.RecordGenerationLatency(opScript, time.Since(start))

	outcome := metrics.OutcomeSuccess
	switch {
	case res.NotConfigured:
		outcome = metrics.OutcomeNotConfigured
	case res.Failed:
		outcome = metrics.OutcomeProviderError
	}
	s.metrics.RecordGeneration(opScript, res.Provider, outcome)

	return &ScriptResult{
		Text:          res.Text,
		Provider:      res.Provider,
		NotConfigured: res.NotConfigured,
		Failed:        res.Failed,
	}, nil
}

// StreamScript はスクリプトのストリーミング生成を開始する。
// 返したチャネルは生成完了またはエラー時に閉じられる。
func (s *Service) StreamScript(ctx context.Context, req model.GenerationRequest) (<-chan llm.Chunk, error) {
	if !req.HasTopic() {
		return nil, model.NewTopicRequiredError()
	}

	ch, err := s.client.Stream(ctx, prompt.Stream(req))
	if err != nil {
		apiErr := MapProviderError(err)
		s.metrics.RecordGeneration(opStream, s.client.ProviderName(), outcomeFor(apiErr))
		return nil, apiErr
	}

	s.metrics.RecordGeneration(opStream, s.client.ProviderName(), metrics.OutcomeSuccess)
	return ch, nil
}

// GenerateCalendar は複数日分のコンテンツカレンダーを生成する。
// 日数は許容範囲に丸める。項目が0件の場合は空の成功ではなくGENERATION_EMPTYを返す。
func (s *Service) GenerateCalendar(ctx context.Context, req model.GenerationRequest) ([]model.CalendarItem, error) {
	if !req.HasTopic() {
		return nil, model.NewTopicRequiredError()
	}
	req.Days = prompt.ClampDays(req.Days)

	start := time.Now()
	raw, err := s.client.CompleteJSON(ctx, prompt.Calendar(req))
	s.metrics.RecordGenerationLatency(opCalendar, time.Since(start))
	if err != nil {
		apiErr := MapProviderError(err)
		s.metrics.RecordGeneration(opCalendar, s.client.ProviderName(), outcomeFor(apiErr))
		return nil, apiErr
	}

	items, res := normalize.CalendarItems(raw)
	switch res.Kind {
	case normalize.KindMalformed:
		s.logger.Warn("カレンダーの応答をJSONとして解釈できませんでした",
			slog.String("provider", s.client.ProviderName()),
			slog.Int("raw_length", len(raw)),
		)
		s.metrics.RecordGeneration(opCalendar, s.client.ProviderName(), metrics.OutcomeMalformed)
		return nil, model.NewGenerationMalformedError()
	case normalize.KindEmpty:
		s.logger.Warn("カレンダーの応答に項目が含まれていませんでした",
			slog.String("provider", s.client.ProviderName()),
		)
		s.metrics.RecordGeneration(opCalendar, s.client.ProviderName(), metrics.OutcomeEmpty)
		return nil, model.NewGenerationEmptyError()
	}

	s.logger.Info("カレンダーを生成しました",
		slog.String("provider", s.client.ProviderName()),
		slog.Int("requested_days", req.Days),
		slog.Int("items", len(items)),
	)
	s.metrics.RecordGeneration(opCalendar, s.client.ProviderName(), metrics.OutcomeSuccess)
	return items, nil
}

// GenerateVisuals はスクリプトから絵コンテを生成し、画像URLへ展開する。
// seedがnilの場合は新しいシードを使う。同じ表示を再現したい場合は前回のシードを渡す。
func (s *Service) GenerateVisuals(ctx context.Context, script string, req model.GenerationRequest, seed *int64) (*visual.Storyboard, error) {
	if strings.TrimSpace(script) == "" {
		return nil, model.NewInvalidRequestError("script is required")
	}

	start := time.Now()
	set, err := s.visuals.Generate(ctx, script, req)
	s.metrics.RecordGenerationLatency(opVisuals, time.Since(start))
	if err != nil {
		apiErr := MapProviderError(err)
		s.metrics.RecordGeneration(opVisuals, s.client.ProviderName(), outcomeFor(apiErr))
		return nil, apiErr
	}
	s.metrics.RecordGeneration(opVisuals, s.client.ProviderName(), metrics.OutcomeSuccess)

	n := visual.NewSeed()
	if seed != nil {
		n = *seed
	}
	return s.images.Storyboard(set, n), nil
}

// MapProviderError は生成時のエラーをユーザー向けのAPIErrorに変換する。
// すでにAPIErrorの場合はそのまま返す。
func MapProviderError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if llm.IsNotConfigured(err) {
		return model.NewNotConfiguredError()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewProviderUnavailableError()
	}

	switch status := llm.StatusCodeOf(err); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewProviderAuthError()
	case status == http.StatusTooManyRequests:
		return model.NewProviderRateLimitedError()
	case status >= http.StatusInternalServerError:
		return model.NewProviderUnavailableError()
	}
	return model.NewGenerationFailedError(err.Error())
}

func outcomeFor(apiErr *model.APIError) string {
	switch apiErr.Code {
	case model.ErrCodeNotConfigured:
		return metrics.OutcomeNotConfigured
	case model.ErrCodeGenerationEmpty:
		return metrics.OutcomeEmpty
	case model.ErrCodeGenerationMalformed:
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeProviderError
	}
}
