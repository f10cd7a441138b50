// Package auth はGoogleログインとCookieセッションを扱う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// WelcomeNotifier は新規登録時のwelcomeメールを非同期に送るインターフェース。
type WelcomeNotifier interface {
	SendAsync(kind notify.Kind, recipient string, data notify.Data)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はログイン・ログアウト・現在ユーザー取得を提供する。
type Service struct {
	oauth      OAuthProvider
	users      repository.UserRepository
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	config     ServiceConfig
	welcome    WelcomeNotifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:      oauth,
		users:      userRepo,
		identities: identRepo,
		sessions:   sessionRepo,
		config:     config,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// SetWelcomeNotifier は新規ユーザー作成時のwelcomeメール送信先を設定する。
// 未設定の場合はメールを送らない。
func (s *Service) SetWelcomeNotifier(n WelcomeNotifier) {
	s.welcome = n
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初回ログインではユーザーを作成してwelcomeメールを送り、
// 2回目以降はGoogle側のメールアドレス・表示名の変更を取り込む。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User
	if identity != nil {
		user, err = s.syncProfile(ctx, identity.UserID, info)
	} else {
		user, err = s.register(ctx, info)
	}
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// register はusersとidentitiesを同一トランザクションで作成し、welcomeメールを送る。
func (s *Service) register(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	now := s.now()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.users.CreateWithIdentity(ctx, user, identity); err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	s.logger.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)

	// welcomeメールはログインの成否に影響させない
	if s.welcome != nil && user.Email != "" {
		s.welcome.SendAsync(notify.KindWelcome, user.Email, notify.Data{Name: user.DisplayName()})
	}
	return user, nil
}

// syncProfile は既存ユーザーを取得し、Google側で変わった項目があれば更新する。
// 更新に失敗してもログインは継続する。
func (s *Service) syncProfile(ctx context.Context, userID string, info *OAuthUserInfo) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("identity refers to missing user %s", userID)
	}

	changed := false
	if info.Email != "" && info.Email != user.Email {
		user.Email = info.Email
		changed = true
	}
	if info.Name != "" && info.Name != user.Name {
		user.Name = info.Name
		changed = true
	}

	if changed {
		user.UpdatedAt = s.now()
		if err := s.users.UpdateProfile(ctx, user); err != nil {
			s.logger.Warn("failed to sync user profile",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("existing user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
		slog.Bool("profile_updated", changed),
	)
	return user, nil
}

// Logout はセッションを破棄する。セッションIDが空の場合は何もしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無い・期限切れの場合はUNAUTHORIZED、ユーザーが消えている場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.Active(s.now()) {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は32バイトの乱数を16進文字列にしたセッションIDを返す。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
