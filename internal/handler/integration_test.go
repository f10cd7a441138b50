package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/scriptgo/internal/llm"
	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/script"
)

// --- 統合テスト用のステートフルモック ---

// integrationState は統合テスト用の共有状態を保持する。
type integrationState struct {
	sessions map[string]*model.Session
	users    map[string]*model.User
	scripts  map[string]*model.Script
	emailed  []string // 送信済みスクリプトID
	nextID   int
}

func newIntegrationState() *integrationState {
	return &integrationState{
		sessions: make(map[string]*model.Session),
		users:    make(map[string]*model.User),
		scripts:  make(map[string]*model.Script),
	}
}

func (s *integrationState) newScriptID() string {
	s.nextID++
	return fmt.Sprintf("script-%d", s.nextID)
}

// ownedScript は所有者が一致するスクリプトだけを返す。
func (s *integrationState) ownedScript(userID, id string) *model.Script {
	sc, ok := s.scripts[id]
	if !ok || sc.UserID != userID {
		return nil
	}
	return sc
}

// --- 統合テスト用ルーター構築ヘルパー ---

func createIntegrationRouter(state *integrationState) http.Handler {
	sessionFinder := &mockSessionFinderForRouter{
		sessions: state.sessions,
	}
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	deps := &RouterDeps{
		SessionFinder:     sessionFinder,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		AuthService: &mockAuthService{
			getLoginURLFn: func(s string) string {
				return "https://accounts.google.com/o/oauth2/auth?state=" + s
			},
			handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
				session := &model.Session{
					ID:        "session-integration-1",
					UserID:    "user-integration-1",
					ExpiresAt: time.Now().Add(24 * time.Hour),
				}
				state.sessions[session.ID] = session
				state.users["user-integration-1"] = &model.User{
					ID:    "user-integration-1",
					Email: "integration@example.com",
					Name:  "Integration User",
				}
				return session, nil
			},
			logoutFn: func(ctx context.Context, sessionID string) error {
				delete(state.sessions, sessionID)
				return nil
			},
			getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
				sess, ok := state.sessions[sessionID]
				if !ok {
					return nil, model.NewUnauthorizedError()
				}
				user, ok := state.users[sess.UserID]
				if !ok {
					return nil, model.NewUserNotFoundError()
				}
				return user, nil
			},
		},
		AuthConfig: AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 86400},
		GenerationService: &mockGenerationService{
			streamScriptFn: func(ctx context.Context, req model.GenerationRequest) (<-chan llm.Chunk, error) {
				return chunksOf(
					llm.Chunk{Text: "**Hook:** " + req.Topic + "\n"},
					llm.Chunk{Text: "**Body:** three tips."},
				), nil
			},
		},
		ScriptService: &mockScriptService{
			saveFn: func(ctx context.Context, userID, id string, in script.SaveInput) (*model.Script, error) {
				title := in.Title
				if strings.TrimSpace(title) == "" {
					title = model.DefaultScriptTitle
				}
				if id == "" {
					base = base.Add(time.Minute)
					sc := &model.Script{
						ID: state.newScriptID(), UserID: userID, Title: title,
						Platform: in.Platform, Content: in.Content, Label: in.Label,
						CreatedAt: base, UpdatedAt: base,
					}
					state.scripts[sc.ID] = sc
					return sc, nil
				}
				sc := state.ownedScript(userID, id)
				if sc == nil {
					return nil, model.NewScriptNotFoundError(id)
				}
				sc.Title, sc.Content, sc.Label = title, in.Content, in.Label
				return sc, nil
			},
			listFn: func(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error) {
				out := make([]*model.Script, 0)
				for _, sc := range state.scripts {
					if sc.UserID == userID {
						out = append(out, sc)
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
				return out, nil
			},
			getFn: func(ctx context.Context, userID, id string) (*model.Script, error) {
				sc := state.ownedScript(userID, id)
				if sc == nil {
					return nil, model.NewScriptNotFoundError(id)
				}
				return sc, nil
			},
			deleteFn: func(ctx context.Context, userID, id string) error {
				if state.ownedScript(userID, id) == nil {
					return model.NewScriptNotFoundError(id)
				}
				delete(state.scripts, id)
				return nil
			},
			emailScriptFn: func(ctx context.Context, userID, id string) (*notify.SendResult, error) {
				if state.ownedScript(userID, id) == nil {
					return nil, model.NewScriptNotFoundError(id)
				}
				state.emailed = append(state.emailed, id)
				return &notify.SendResult{Success: true, ID: "email-" + id}, nil
			},
		},
		UserService: &mockUserService{
			withdrawFn: func(ctx context.Context, userID string) error {
				// ユーザー関連データを全削除
				for id, sc := range state.scripts {
					if sc.UserID == userID {
						delete(state.scripts, id)
					}
				}
				for id, sess := range state.sessions {
					if sess.UserID == userID {
						delete(state.sessions, id)
					}
				}
				delete(state.users, userID)
				return nil
			},
		},
	}

	return NewRouter(deps)
}

// seedLoggedInUser はログイン済みユーザーとセッションを用意する。
func seedLoggedInUser(state *integrationState, sessionID, userID string) *http.Cookie {
	state.sessions[sessionID] = &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
	state.users[userID] = &model.User{
		ID:    userID,
		Email: userID + "@example.com",
		Name:  "Test User",
	}
	return &http.Cookie{Name: middleware.SessionCookieName, Value: sessionID}
}

// --- エンドツーエンド統合テスト ---

// TestIntegration_AuthFlow_LoginCallbackMeLogout はOAuth認証フロー全体を検証する。
// ログイン → コールバック → セッション発行 → /auth/me で認証確認 → ログアウト → セッション破棄
func TestIntegration_AuthFlow_LoginCallbackMeLogout(t *testing.T) {
	state := newIntegrationState()
	router := createIntegrationRouter(state)

	// 1. ログイン: OAuthリダイレクトURLが返ること
	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("step1: GET /auth/google/login status = %d, want %d", resp.StatusCode, http.StatusFound)
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, "accounts.google.com") {
		t.Fatalf("step1: redirect location = %q, should contain accounts.google.com", location)
	}

	// OAuthステートクッキーを取得
	var oauthStateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookieName {
			oauthStateCookie = c
			break
		}
	}
	if oauthStateCookie == nil {
		t.Fatal("step1: expected oauth state cookie")
	}

	// 2. コールバック: セッションが発行されること
	callbackURL := "/auth/google/callback?code=test-auth-code&state=" + oauthStateCookie.Value
	req = httptest.NewRequest(http.MethodGet, callbackURL, nil)
	req.AddCookie(oauthStateCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp = w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("step2: callback status = %d, want %d", resp.StatusCode, http.StatusFound)
	}

	// セッションクッキーを取得
	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
			break
		}
	}
	if sessionCookie == nil {
		t.Fatal("step2: expected session cookie")
	}
	if sessionCookie.Value == "" {
		t.Fatal("step2: expected non-empty session cookie")
	}

	// 3. /auth/me: セッション付きでユーザー情報が取得できること
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp = w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("step3: GET /auth/me status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var meBody map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&meBody)
	if meBody["email"] != "integration@example.com" {
		t.Errorf("step3: email = %q, want %q", meBody["email"], "integration@example.com")
	}

	// 4. ログアウト: セッションが破棄されること
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp = w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("step4: POST /auth/logout status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}

	// 5. ログアウト後に /auth/me にアクセスすると401が返ること
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(sessionCookie) // 古いセッションを使用
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp = w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("step5: GET /auth/me after logout status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// TestIntegration_GenerateSaveListDeleteFlow はスクリプトの生成から削除までを検証する。
// ストリーミング生成 → 保存 → 一覧 → メール送信 → 削除確認なしは拒否 → 削除
func TestIntegration_GenerateSaveListDeleteFlow(t *testing.T) {
	state := newIntegrationState()
	cookie := seedLoggedInUser(state, "session-test", "user-test")
	router := createIntegrationRouter(state)

	// 1. ストリーミング生成
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"topic":"morning routines","platform":"TikTok"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("step1: POST /api/generate status = %d, want %d", w.Code, http.StatusOK)
	}
	generated := w.Body.String()
	if !strings.Contains(generated, "morning routines") {
		t.Fatalf("step1: generated text = %q, should contain topic", generated)
	}

	// 2. 保存（タイトル未入力）
	saveBody, _ := json.Marshal(map[string]any{
		"platform": "TikTok",
		"content":  map[string]string{"text": generated},
	})
	req = httptest.NewRequest(http.MethodPost, "/api/scripts", strings.NewReader(string(saveBody)))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("step2: POST /api/scripts status = %d, want %d", w.Code, http.StatusCreated)
	}
	var saved scriptResponse
	json.NewDecoder(w.Body).Decode(&saved)
	if saved.Title != model.DefaultScriptTitle {
		t.Errorf("step2: title = %q, want %q", saved.Title, model.DefaultScriptTitle)
	}
	if saved.Content.Text != generated {
		t.Errorf("step2: content = %q, want generated text", saved.Content.Text)
	}

	// 3. 一覧に保存したスクリプトが含まれる
	req = httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var list scriptListResponse
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Scripts) != 1 || list.Scripts[0].ID != saved.ID {
		t.Fatalf("step3: scripts = %+v, want [%s]", list.Scripts, saved.ID)
	}

	// 4. メール送信
	req = httptest.NewRequest(http.MethodPost, "/api/scripts/"+saved.ID+"/email", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("step4: POST /api/scripts/%s/email status = %d, want %d", saved.ID, w.Code, http.StatusOK)
	}
	if len(state.emailed) != 1 || state.emailed[0] != saved.ID {
		t.Errorf("step4: emailed = %v, want [%s]", state.emailed, saved.ID)
	}

	// 5. confirmなしの削除は拒否される
	req = httptest.NewRequest(http.MethodDelete, "/api/scripts/"+saved.ID, nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("step5: DELETE without confirm status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(state.scripts) != 1 {
		t.Fatalf("step5: script should remain, got %d", len(state.scripts))
	}

	// 6. confirm=trueで削除
	req = httptest.NewRequest(http.MethodDelete, "/api/scripts/"+saved.ID+"?confirm=true", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("step6: DELETE status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(state.scripts) != 0 {
		t.Errorf("step6: expected 0 scripts, got %d", len(state.scripts))
	}
}

// TestIntegration_ScriptsAreIsolatedPerUser は他ユーザーのスクリプトにアクセスできないことを検証する。
func TestIntegration_ScriptsAreIsolatedPerUser(t *testing.T) {
	state := newIntegrationState()
	alice := seedLoggedInUser(state, "session-alice", "alice")
	bob := seedLoggedInUser(state, "session-bob", "bob")
	router := createIntegrationRouter(state)

	req := httptest.NewRequest(http.MethodPost, "/api/scripts", strings.NewReader(`{"title":"Private","content":{"text":"x"}}`))
	req.AddCookie(alice)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var saved scriptResponse
	json.NewDecoder(w.Body).Decode(&saved)

	for _, ep := range []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/scripts/" + saved.ID, http.StatusNotFound},
		{http.MethodDelete, "/api/scripts/" + saved.ID + "?confirm=true", http.StatusNotFound},
		{http.MethodPost, "/api/scripts/" + saved.ID + "/email", http.StatusNotFound},
	} {
		req = httptest.NewRequest(ep.method, ep.path, nil)
		req.AddCookie(bob)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != ep.want {
			t.Errorf("%s %s as bob status = %d, want %d", ep.method, ep.path, w.Code, ep.want)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
	req.AddCookie(bob)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var list scriptListResponse
	json.NewDecoder(w.Body).Decode(&list)
	if len(list.Scripts) != 0 {
		t.Errorf("bob sees %d scripts, want 0", len(list.Scripts))
	}
}

// TestIntegration_WithdrawFlow は退会で全データが削除されることを検証する。
// スクリプト保存 → 退会 → 全データ削除確認 → 旧セッションで401
func TestIntegration_WithdrawFlow(t *testing.T) {
	state := newIntegrationState()
	cookie := seedLoggedInUser(state, "session-test", "user-test")
	router := createIntegrationRouter(state)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/scripts", strings.NewReader(`{"content":{"text":"x"}}`))
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("POST /api/scripts status = %d, want %d", w.Code, http.StatusCreated)
		}
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/users/me status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(state.users) != 0 {
		t.Errorf("expected 0 users after withdraw, got %d", len(state.users))
	}
	if len(state.sessions) != 0 {
		t.Errorf("expected 0 sessions after withdraw, got %d", len(state.sessions))
	}
	if len(state.scripts) != 0 {
		t.Errorf("expected 0 scripts after withdraw, got %d", len(state.scripts))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/scripts after withdraw status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestIntegration_ProtectedEndpoints_RequireAuth は全保護エンドポイントが認証を要求することを検証する。
func TestIntegration_ProtectedEndpoints_RequireAuth(t *testing.T) {
	state := newIntegrationState()
	router := createIntegrationRouter(state)

	endpoints := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/me", ""},
		{http.MethodPost, "/api/generate", `{"topic": "coffee"}`},
		{http.MethodPost, "/api/scripts/generate", `{"topic": "coffee"}`},
		{http.MethodPost, "/api/calendar/generate", `{"topic": "coffee", "days": 7}`},
		{http.MethodPost, "/api/visuals/generate", `{"script": "x"}`},
		{http.MethodPost, "/api/calendar/save", `{"items": []}`},
		{http.MethodGet, "/api/scripts", ""},
		{http.MethodPost, "/api/scripts", `{"content": {"text": "x"}}`},
		{http.MethodGet, "/api/scripts/script-1", ""},
		{http.MethodPut, "/api/scripts/script-1", `{"title": "x"}`},
		{http.MethodDelete, "/api/scripts/script-1?confirm=true", ""},
		{http.MethodPost, "/api/scripts/script-1/email", ""},
		{http.MethodDelete, "/api/users/me", ""},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, strings.NewReader(ep.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("%s %s (no auth) status = %d, want %d",
					ep.method, ep.path, w.Result().StatusCode, http.StatusUnauthorized)
			}
		})
	}
}
