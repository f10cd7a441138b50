package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/repository"
	"github.com/hitoshi/scriptgo/internal/script"
)

// --- モック定義 ---

// mockScriptService はScriptServiceInterfaceのモック実装。
type mockScriptService struct {
	saveFn         func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error)
	listFn         func(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error)
	getFn          func(ctx context.Context, userID, id string) (*model.Script, error)
	deleteFn       func(ctx context.Context, userID, id string) error
	saveCalendarFn func(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error)
	emailScriptFn  func(ctx context.Context, userID, id string) (*notify.SendResult, error)
}

func (m *mockScriptService) Save(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, userID, id, in)
	}
	return &model.Script{ID: id, UserID: userID, Title: in.Title}, nil
}

func (m *mockScriptService) List(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, filter)
	}
	return []*model.Script{}, nil
}

func (m *mockScriptService) Get(ctx context.Context, userID, id string) (*model.Script, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return &model.Script{ID: id, UserID: userID}, nil
}

func (m *mockScriptService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockScriptService) SaveCalendar(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error) {
	if m.saveCalendarFn != nil {
		return m.saveCalendarFn(ctx, userID, items, startDate, platform, label)
	}
	return []*model.Script{}, nil
}

func (m *mockScriptService) EmailScript(ctx context.Context, userID, id string) (*notify.SendResult, error) {
	if m.emailScriptFn != nil {
		return m.emailScriptFn(ctx, userID, id)
	}
	return &notify.SendResult{Success: true}, nil
}

// --- GET /api/scripts テスト ---

func TestScriptHandler_ListScripts_PassesFilter(t *testing.T) {
	svc := &mockScriptService{
		listFn: func(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if filter.Platform != model.PlatformLinkedIn || filter.Label != "launch" || filter.Limit != 20 {
				t.Errorf("filter = %+v", filter)
			}
			return []*model.Script{
				{ID: "s-2", Title: "Newer", Platform: model.PlatformLinkedIn},
				{ID: "s-1", Title: "Older", Platform: model.PlatformLinkedIn},
			}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/scripts?platform=LinkedIn&label=launch&limit=20", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListScripts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp scriptListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Scripts) != 2 || resp.Scripts[0].ID != "s-2" {
		t.Errorf("scripts = %+v", resp.Scripts)
	}
}

func TestScriptHandler_ListScripts_EmptyIsArray(t *testing.T) {
	h := NewScriptHandler(&mockScriptService{})

	req := httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListScripts(w, req)

	if !strings.Contains(w.Body.String(), `"scripts":[]`) {
		t.Errorf("body = %s, want empty array", w.Body.String())
	}
}

func TestScriptHandler_ListScripts_InvalidLimit_Returns400(t *testing.T) {
	for _, limit := range []string{"abc", "-1"} {
		h := NewScriptHandler(&mockScriptService{})

		req := httptest.NewRequest(http.MethodGet, "/api/scripts?limit="+limit, nil)
		req = withUserID(req, "user-123")
		w := httptest.NewRecorder()

		h.ListScripts(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}

func TestScriptHandler_ListScripts_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewScriptHandler(&mockScriptService{})

	req := httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
	w := httptest.NewRecorder()

	h.ListScripts(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /api/scripts テスト ---

func TestScriptHandler_SaveScript_New_Returns201(t *testing.T) {
	svc := &mockScriptService{
		saveFn: func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
			if id != "" {
				t.Errorf("id = %q, want empty", id)
			}
			if in.Content.Text != "Hook line" || in.Platform != model.PlatformTikTok {
				t.Errorf("input = %+v", in)
			}
			return &model.Script{ID: "s-new", UserID: userID, Title: in.Title, Platform: in.Platform, Content: in.Content}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := postJSON("/api/scripts", `{"title":"My hook","platform":"TikTok","content":{"text":"Hook line"}}`)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveScript(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var resp scriptResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.ID != "s-new" || resp.Title != "My hook" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestScriptHandler_SaveScript_WithID_Returns200(t *testing.T) {
	svc := &mockScriptService{
		saveFn: func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
			if id != "s-1" {
				t.Errorf("id = %q, want %q", id, "s-1")
			}
			return &model.Script{ID: id, UserID: userID, Title: in.Title}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := postJSON("/api/scripts", `{"id":"s-1","title":"Edited","content":{"text":"x"}}`)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveScript(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestScriptHandler_SaveScript_SaveFailed_Returns500(t *testing.T) {
	svc := &mockScriptService{
		saveFn: func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
			return nil, model.NewSaveFailedError()
		},
	}
	h := NewScriptHandler(svc)

	req := postJSON("/api/scripts", `{"content":{"text":"x"}}`)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveScript(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeSaveFailed {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeSaveFailed)
	}
}

// --- GET/PUT /api/scripts/{id} テスト ---

func TestScriptHandler_GetScript_NotFound_Returns404(t *testing.T) {
	svc := &mockScriptService{
		getFn: func(ctx context.Context, userID, id string) (*model.Script, error) {
			return nil, model.NewScriptNotFoundError(id)
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/scripts/s-404", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "s-404")
	w := httptest.NewRecorder()

	h.GetScript(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestScriptHandler_UpdateScript_UsesPathID(t *testing.T) {
	svc := &mockScriptService{
		saveFn: func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
			if id != "s-7" {
				t.Errorf("id = %q, want %q", id, "s-7")
			}
			return &model.Script{ID: id, Title: in.Title}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/scripts/s-7", strings.NewReader(`{"id":"ignored","title":"T"}`))
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "s-7")
	w := httptest.NewRecorder()

	h.UpdateScript(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// --- DELETE /api/scripts/{id} テスト ---

func TestScriptHandler_DeleteScript_RequiresConfirm(t *testing.T) {
	called := false
	svc := &mockScriptService{
		deleteFn: func(ctx context.Context, userID, id string) error {
			called = true
			return nil
		},
	}
	h := NewScriptHandler(svc)

	for _, query := range []string{"", "?confirm=false", "?confirm=yes-please"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/scripts/s-1"+query, nil)
		req = withUserID(req, "user-123")
		req = withChiURLParam(req, "id", "s-1")
		w := httptest.NewRecorder()

		h.DeleteScript(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("query=%q status = %d, want %d", query, w.Code, http.StatusBadRequest)
		}
		body := parseAPIErrorResponse(t, w)
		if body["code"] != model.ErrCodeConfirmationRequired {
			t.Errorf("code = %q, want %q", body["code"], model.ErrCodeConfirmationRequired)
		}
	}
	if called {
		t.Error("確認なしで削除が実行されました")
	}
}

func TestScriptHandler_DeleteScript_Confirmed_Returns204(t *testing.T) {
	var deletedID string
	svc := &mockScriptService{
		deleteFn: func(ctx context.Context, userID, id string) error {
			deletedID = id
			return nil
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/scripts/s-1?confirm=true", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "s-1")
	w := httptest.NewRecorder()

	h.DeleteScript(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if deletedID != "s-1" {
		t.Errorf("deleted id = %q, want %q", deletedID, "s-1")
	}
}

// --- POST /api/calendar/save テスト ---

func TestScriptHandler_SaveCalendar_DefaultsStartDateToNow(t *testing.T) {
	fixed := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	svc := &mockScriptService{
		saveCalendarFn: func(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error) {
			if !startDate.Equal(fixed) {
				t.Errorf("startDate = %v, want %v", startDate, fixed)
			}
			if len(items) != 2 || platform != model.PlatformInstagram || label != "october" {
				t.Errorf("items=%d platform=%q label=%q", len(items), platform, label)
			}
			out := make([]*model.Script, len(items))
			for i, it := range items {
				out[i] = &model.Script{ID: it.Title, Title: it.Title}
			}
			return out, nil
		},
	}
	h := NewScriptHandler(svc)
	h.now = func() time.Time { return fixed }

	body := `{"items":[{"day":1,"title":"a","content":"x"},{"day":2,"title":"b","content":"y"}],"platform":"Instagram","label":"october"}`
	req := postJSON("/api/calendar/save", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveCalendar(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var resp scriptListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Scripts) != 2 {
		t.Errorf("scripts = %d, want 2", len(resp.Scripts))
	}
}

func TestScriptHandler_SaveCalendar_ExplicitStartDate(t *testing.T) {
	svc := &mockScriptService{
		saveCalendarFn: func(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error) {
			want := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
			if !startDate.Equal(want) {
				t.Errorf("startDate = %v, want %v", startDate, want)
			}
			return []*model.Script{}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := postJSON("/api/calendar/save", `{"items":[{"day":1,"title":"a","content":"x"}],"startDate":"2026-12-01"}`)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveCalendar(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestScriptHandler_SaveCalendar_NoItems_Returns400(t *testing.T) {
	svc := &mockScriptService{
		saveCalendarFn: func(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error) {
			return nil, model.NewInvalidRequestError("items are required")
		},
	}
	h := NewScriptHandler(svc)

	req := postJSON("/api/calendar/save", `{"items":[]}`)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SaveCalendar(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/scripts/{id}/email テスト ---

func TestScriptHandler_EmailScript_Success(t *testing.T) {
	svc := &mockScriptService{
		emailScriptFn: func(ctx context.Context, userID, id string) (*notify.SendResult, error) {
			return &notify.SendResult{Success: true, ID: "email-1"}, nil
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/scripts/s-1/email", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "s-1")
	w := httptest.NewRecorder()

	h.EmailScript(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var result notify.SendResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !result.Success || result.ID != "email-1" {
		t.Errorf("result = %+v", result)
	}
}

func TestScriptHandler_EmailScript_NotConfigured_Returns503(t *testing.T) {
	svc := &mockScriptService{
		emailScriptFn: func(ctx context.Context, userID, id string) (*notify.SendResult, error) {
			return nil, model.NewEmailNotConfiguredError()
		},
	}
	h := NewScriptHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/scripts/s-1/email", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "s-1")
	w := httptest.NewRecorder()

	h.EmailScript(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// --- UUID形式でないID ---

// unreachableScriptRepo は呼ばれた時点でテストを失敗させるScriptRepository。
// 未実装のメソッドは埋め込んだnilインターフェース経由でpanicする。
type unreachableScriptRepo struct {
	repository.ScriptRepository
	t *testing.T
}

func (r *unreachableScriptRepo) Create(ctx context.Context, s *model.Script) error {
	r.t.Errorf("Createが呼ばれた: %+v", s)
	return nil
}

func (r *unreachableScriptRepo) Update(ctx context.Context, s *model.Script) (bool, error) {
	r.t.Errorf("Updateが呼ばれた: id=%q", s.ID)
	return false, nil
}

func (r *unreachableScriptRepo) FindByID(ctx context.Context, userID, id string) (*model.Script, error) {
	r.t.Errorf("FindByIDが呼ばれた: id=%q", id)
	return nil, nil
}

func (r *unreachableScriptRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	r.t.Errorf("Deleteが呼ばれた: id=%q", id)
	return false, nil
}

func TestScriptHandler_NonUUIDID_Returns404(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		pathID  string
		handler func(h *ScriptHandler) http.HandlerFunc
	}{
		{"GET", http.MethodGet, "/api/scripts/abc", "", "abc",
			func(h *ScriptHandler) http.HandlerFunc { return h.GetScript }},
		{"PUT", http.MethodPut, "/api/scripts/abc", `{"title":"T"}`, "abc",
			func(h *ScriptHandler) http.HandlerFunc { return h.UpdateScript }},
		{"DELETE", http.MethodDelete, "/api/scripts/abc?confirm=true", "", "abc",
			func(h *ScriptHandler) http.HandlerFunc { return h.DeleteScript }},
		{"POST本文のid", http.MethodPost, "/api/scripts", `{"id":"abc","title":"T"}`, "",
			func(h *ScriptHandler) http.HandlerFunc { return h.SaveScript }},
		{"メール送信", http.MethodPost, "/api/scripts/abc/email", "", "abc",
			func(h *ScriptHandler) http.HandlerFunc { return h.EmailScript }},
		{"数値のみ", http.MethodGet, "/api/scripts/42", "", "42",
			func(h *ScriptHandler) http.HandlerFunc { return h.GetScript }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			svc := script.NewService(&unreachableScriptRepo{t: t}, nil, nil, slog.New(slog.NewJSONHandler(&buf, nil)))
			h := NewScriptHandler(svc)

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req = withUserID(req, "user-123")
			if tt.pathID != "" {
				req = withChiURLParam(req, "id", tt.pathID)
			}
			w := httptest.NewRecorder()

			tt.handler(h)(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d（500にしてはならない）", w.Code, http.StatusNotFound)
			}
			body := parseAPIErrorResponse(t, w)
			if body["code"] != model.ErrCodeScriptNotFound {
				t.Errorf("code = %q, want %q", body["code"], model.ErrCodeScriptNotFound)
			}
		})
	}
}
