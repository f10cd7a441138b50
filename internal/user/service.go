// Package user はアカウント退会を扱う。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/repository"
)

// ScriptDeleter はユーザーの保存済みスクリプトを一括削除する。
type ScriptDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service は退会処理を提供する。
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	scripts  ScriptDeleter
	logger   *slog.Logger
}

// NewService はServiceを生成する。sessionsとscriptsはnilでもよい。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	scripts ScriptDeleter,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		scripts:  scripts,
		logger:   slog.Default(),
	}
}

type purgeStep struct {
	name string
	run  func(ctx context.Context, userID string) error
}

// Withdraw はユーザーと関連データを削除する。
// scripts、sessions、usersの順に削除し、途中で失敗した場合は以降を実行しない。
// identitiesはusersのCASCADEで消える。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	log := s.logger.With(slog.String("user_id", userID))
	log.Info("withdrawal started")

	for _, step := range s.steps() {
		if err := step.run(ctx, userID); err != nil {
			log.Error("withdrawal aborted",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to delete %s: %w", step.name, err)
		}
	}

	log.Info("withdrawal completed")
	return nil
}

func (s *Service) steps() []purgeStep {
	var steps []purgeStep
	if s.scripts != nil {
		steps = append(steps, purgeStep{"scripts", s.scripts.DeleteByUserID})
	}
	if s.sessions != nil {
		steps = append(steps, purgeStep{"sessions", s.sessions.DeleteByUserID})
	}
	return append(steps, purgeStep{"user", s.users.DeleteByID})
}
