package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/script"
)

// ScriptServiceInterface はスクリプトハンドラーが必要とするサービスインターフェース。
type ScriptServiceInterface interface {
	Save(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error)
	List(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error)
	Get(ctx context.Context, userID, id string) (*model.Script, error)
	Delete(ctx context.Context, userID, id string) error
	SaveCalendar(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error)
	EmailScript(ctx context.Context, userID, id string) (*notify.SendResult, error)
}

// ScriptHandler は保存済みスクリプトのHTTPハンドラー。
type ScriptHandler struct {
	service ScriptServiceInterface
	now     func() time.Time
}

// NewScriptHandler はScriptHandlerを生成する。
func NewScriptHandler(service ScriptServiceInterface) *ScriptHandler {
	return &ScriptHandler{
		service: service,
		now:     time.Now,
	}
}

// saveScriptRequest はスクリプト保存リクエストのボディ。
type saveScriptRequest struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Platform string              `json:"platform"`
	Content  model.ScriptContent `json:"content"`
	Label    string              `json:"label"`
}

// saveCalendarRequest はカレンダー一括保存リクエストのボディ。
type saveCalendarRequest struct {
	Items     []model.CalendarItem `json:"items"`
	StartDate string               `json:"startDate"`
	Platform  string               `json:"platform"`
	Label     string               `json:"label"`
}

// scriptResponse はスクリプトのAPIレスポンス。
type scriptResponse struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Platform     string              `json:"platform"`
	Content      model.ScriptContent `json:"content"`
	Label        string              `json:"label"`
	ScheduledFor *time.Time          `json:"scheduled_for,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type scriptListResponse struct {
	Scripts []scriptResponse `json:"scripts"`
}

func toScriptResponse(s *model.Script) scriptResponse {
	return scriptResponse{
		ID:           s.ID,
		Title:        s.Title,
		Platform:     string(s.Platform),
		Content:      s.Content,
		Label:        s.Label,
		ScheduledFor: s.ScheduledFor,
		DeliveredAt:  s.DeliveredAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toScriptListResponse(scripts []*model.Script) scriptListResponse {
	resp := scriptListResponse{Scripts: make([]scriptResponse, len(scripts))}
	for i, s := range scripts {
		resp.Scripts[i] = toScriptResponse(s)
	}
	return resp
}

func (req saveScriptRequest) toInput() script.SaveInput {
	return script.SaveInput{
		Title:    req.Title,
		Platform: model.Platform(req.Platform),
		Content:  req.Content,
		Label:    req.Label,
	}
}

// ListScripts はスクリプト一覧を新しい順に返す。
// GET /api/scripts?platform=xxx&label=yyy&limit=n
func (h *ScriptHandler) ListScripts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	q := r.URL.Query()
	filter := model.ScriptFilter{
		Platform: model.Platform(q.Get("platform")),
		Label:    q.Get("label"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	scripts, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScriptListResponse(scripts))
}

// SaveScript はスクリプトを保存する。idがあれば上書き、無ければ新規作成。
// POST /api/scripts
func (h *ScriptHandler) SaveScript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req saveScriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.service.Save(r.Context(), userID, req.ID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if strings.TrimSpace(req.ID) == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, toScriptResponse(saved))
}

// GetScript はスクリプトを1件返す。
// GET /api/scripts/{id}
func (h *ScriptHandler) GetScript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	s, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScriptResponse(s))
}

// UpdateScript は既存のスクリプトを上書きする。
// PUT /api/scripts/{id}
func (h *ScriptHandler) UpdateScript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req saveScriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.service.Save(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScriptResponse(saved))
}

// DeleteScript はスクリプトを削除する。confirm=trueが必須。
// DELETE /api/scripts/{id}?confirm=true
func (h *ScriptHandler) DeleteScript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirmed {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewConfirmationRequiredError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SaveCalendar はカレンダー項目を予約付きスクリプトとしてまとめて保存する。
// startDateが無い場合は当日から配信する。
// POST /api/calendar/save
func (h *ScriptHandler) SaveCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req saveCalendarRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := h.now()
	if strings.TrimSpace(req.StartDate) != "" {
		start, err = parseDate(req.StartDate)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
			return
		}
	}

	scripts, err := h.service.SaveCalendar(r.Context(), userID, req.Items, start, model.Platform(req.Platform), req.Label)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScriptListResponse(scripts))
}

// EmailScript はスクリプトを所有者のメールアドレスへ送る。
// POST /api/scripts/{id}/email
func (h *ScriptHandler) EmailScript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.service.EmailScript(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
