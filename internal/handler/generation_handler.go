package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/scriptgo/internal/generation"
	"github.com/hitoshi/scriptgo/internal/llm"
	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/visual"
)

// GenerationServiceInterface は生成ハンドラーが必要とするサービスインターフェース。
type GenerationServiceInterface interface {
	GenerateScript(ctx context.Context, req model.GenerationRequest) (*generation.ScriptResult, error)
	StreamScript(ctx context.Context, req model.GenerationRequest) (<-chan llm.Chunk, error)
	GenerateCalendar(ctx context.Context, req model.GenerationRequest) ([]model.CalendarItem, error)
	GenerateVisuals(ctx context.Context, script string, req model.GenerationRequest, seed *int64) (*visual.Storyboard, error)
}

// GenerationHandler はテキスト・カレンダー・絵コンテ生成のHTTPハンドラー。
type GenerationHandler struct {
	service GenerationServiceInterface
	logger  *slog.Logger
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(service GenerationServiceInterface, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: service,
		logger:  logger,
	}
}

// generationRequest は生成系エンドポイント共通のリクエストボディ。
type generationRequest struct {
	Topic     string `json:"topic"`
	Tone      string `json:"tone"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
	Framework string `json:"framework"`
	Days      int    `json:"days"`
	StartDate string `json:"startDate"`
}

// visualsRequest は絵コンテ生成のリクエストボディ。
type visualsRequest struct {
	generationRequest
	Script string `json:"script"`
	Seed   *int64 `json:"seed"`
}

type calendarResponse struct {
	Items []model.CalendarItem `json:"items"`
}

// toModel はリクエストボディをドメインの生成パラメータに変換する。
func (g generationRequest) toModel() (model.GenerationRequest, error) {
	req := model.GenerationRequest{
		Topic:     g.Topic,
		Tone:      model.Tone(g.Tone),
		Platform:  model.Platform(g.Platform),
		Language:  g.Language,
		Framework: model.Framework(g.Framework),
		Days:      g.Days,
	}
	if strings.TrimSpace(g.StartDate) != "" {
		start, err := parseDate(g.StartDate)
		if err != nil {
			return req, err
		}
		req.StartDate = &start
	}
	return req.WithDefaults(), nil
}

// parseDate は YYYY-MM-DD または RFC3339 形式の日付を解析する。
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// decodeGenerationRequest はボディを読み取り、日付の不正は400として書き込む。
func decodeGenerationRequest(w http.ResponseWriter, r *http.Request, body *generationRequest) (model.GenerationRequest, bool) {
	if !decodeJSON(w, r, body) {
		return model.GenerationRequest{}, false
	}
	req, err := body.toModel()
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return model.GenerationRequest{}, false
	}
	return req, true
}

// Stream はスクリプトをストリーミング生成し、断片ごとにフラッシュする。
// POST /api/generate
func (h *GenerationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var body generationRequest
	req, ok := decodeGenerationRequest(w, r, &body)
	if !ok {
		return
	}
	if !req.HasTopic() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Topic is required"})
		return
	}

	ch, err := h.service.StreamScript(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	_, streamErr := llm.Accumulate(ch, func(text string) {
		if _, err := w.Write([]byte(text)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			h.logger.Info("クライアントが切断したためストリーミングを終了しました")
			return
		}
		h.logger.Error("ストリーミング生成が途中で失敗しました",
			slog.String("error", streamErr.Error()),
		)
		// ヘッダー送信後のため、エラーは本文に含める
		fmt.Fprintf(w, "\n\nError: %s", generation.MapProviderError(streamErr).Message)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// GenerateScript はスクリプトを一括生成する。
// プロバイダエラーは本文に含めて200で返す。
// POST /api/scripts/generate
func (h *GenerationHandler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	var body generationRequest
	req, ok := decodeGenerationRequest(w, r, &body)
	if !ok {
		return
	}

	result, err := h.service.GenerateScript(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GenerateCalendar はコンテンツカレンダーを生成する。
// POST /api/calendar/generate
func (h *GenerationHandler) GenerateCalendar(w http.ResponseWriter, r *http.Request) {
	var body generationRequest
	req, ok := decodeGenerationRequest(w, r, &body)
	if !ok {
		return
	}

	items, err := h.service.GenerateCalendar(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{Items: items})
}

// GenerateVisuals はスクリプトから絵コンテを生成する。
// POST /api/visuals/generate
func (h *GenerationHandler) GenerateVisuals(w http.ResponseWriter, r *http.Request) {
	var body visualsRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := body.generationRequest.toModel()
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	storyboard, err := h.service.GenerateVisuals(r.Context(), body.Script, req, body.Seed)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, storyboard)
}
