// Package script は保存済みスクリプトの管理を行うドメインロジックを提供する。
package script

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
	"github.com/hitoshi/scriptgo/internal/repository"
)

// UserFinder はメール送信先の解決に使うユーザー検索インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Mailer はスクリプト配信メールの送信インターフェース。
type Mailer interface {
	Send(ctx context.Context, kind notify.Kind, recipient string, data notify.Data) notify.SendResult
}

// SaveInput は保存時にクライアントから受け取る値。
type SaveInput struct {
	Title    string
	Platform model.Platform
	Content  model.ScriptContent
	Label    string
}

// Service はスクリプトのサービス層。
// 全操作は所有者のユーザーIDでスコープされる。
type Service struct {
	repo   repository.ScriptRepository
	users  UserFinder
	mailer Mailer
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ScriptRepository, users UserFinder, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		mailer: mailer,
		logger: logger,
	}
}

// Save はスクリプトを保存する。idが空なら新規作成、指定があれば所有する行を上書きする。
// 同時更新は後勝ち。
func (s *Service) Save(ctx context.Context, userID, id string, in SaveInput) (*model.Script, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = model.DefaultScriptTitle
	}

	script := &model.Script{
		UserID:   userID,
		Title:    title,
		Platform: in.Platform,
		Content:  in.Content,
		Label:    strings.TrimSpace(in.Label),
	}

	id = strings.TrimSpace(id)
	if id == "" {
		if err := s.repo.Create(ctx, script); err != nil {
			s.logger.Error("スクリプトの作成に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSaveFailedError()
		}
		return script, nil
	}

	scriptID, err := parseScriptID(id)
	if err != nil {
		return nil, err
	}
	script.ID = scriptID

	updated, err := s.repo.Update(ctx, script)
	if err != nil {
		s.logger.Error("スクリプトの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("script_id", script.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSaveFailedError()
	}
	if !updated {
		return nil, model.NewScriptNotFoundError(script.ID)
	}
	return script, nil
}

// List はユーザーのスクリプトを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error) {
	scripts, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		s.logger.Error("スクリプト一覧の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewLoadFailedError()
	}
	if scripts == nil {
		scripts = []*model.Script{}
	}
	return scripts, nil
}

// Get は所有するスクリプトを1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Script, error) {
	scriptID, err := parseScriptID(id)
	if err != nil {
		return nil, err
	}

	script, err := s.repo.FindByID(ctx, userID, scriptID)
	if err != nil {
		s.logger.Error("スクリプトの取得に失敗しました",
			slog.String("script_id", scriptID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewLoadFailedError()
	}
	if script == nil {
		return nil, model.NewScriptNotFoundError(id)
	}
	return script, nil
}

// Delete は所有するスクリプトを削除する。他ユーザーの行は見つからない扱いになる。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	scriptID, err := parseScriptID(id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, userID, scriptID)
	if err != nil {
		s.logger.Error("スクリプトの削除に失敗しました",
			slog.String("script_id", scriptID),
			slog.String("error", err.Error()),
		)
		return model.NewDeleteFailedError()
	}
	if !deleted {
		return model.NewScriptNotFoundError(id)
	}
	return nil
}

// SaveCalendar はカレンダー項目をまとめて保存する。
// day番目の項目の配信予定日はstartDate + (day-1)日。
func (s *Service) SaveCalendar(ctx context.Context, userID string, items []model.CalendarItem, startDate time.Time, platform model.Platform, label string) ([]*model.Script, error) {
	if len(items) == 0 {
		return nil, model.NewInvalidRequestError("items are required")
	}

	start := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, startDate.Location())
	scripts := make([]*model.Script, 0, len(items))
	for _, item := range items {
		day := item.Day
		if day < 1 {
			day = 1
		}
		scheduled := start.AddDate(0, 0, day-1)

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = model.DefaultScriptTitle
		}
		itemLabel := strings.TrimSpace(item.Label)
		if itemLabel == "" {
			itemLabel = strings.TrimSpace(label)
		}

		scripts = append(scripts, &model.Script{
			UserID:       userID,
			Title:        title,
			Platform:     platform,
			Content:      model.ScriptContent{Text: item.Content},
			Label:        itemLabel,
			ScheduledFor: &scheduled,
		})
	}

	if err := s.repo.CreateBatch(ctx, scripts); err != nil {
		s.logger.Error("カレンダーの保存に失敗しました",
			slog.String("user_id", userID),
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSaveFailedError()
	}

	s.logger.Info("カレンダーを保存しました",
		slog.String("user_id", userID),
		slog.Int("items", len(scripts)),
	)
	return scripts, nil
}

// EmailScript はスクリプトを所有者のメールアドレスへ送る。
func (s *Service) EmailScript(ctx context.Context, userID, id string) (*notify.SendResult, error) {
	script, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Error("ユーザーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewLoadFailedError()
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	result := s.mailer.Send(ctx, notify.KindScriptDelivery, user.Email, notify.Data{
		ScriptTitle: script.Title,
		ScriptText:  script.Content.Text,
	})
	if result.NotConfigured {
		return nil, model.NewEmailNotConfiguredError()
	}
	if !result.Success {
		return nil, model.NewEmailFailedError(result.Message)
	}
	return &result, nil
}

// parseScriptID はUUID形式でないIDを存在しないスクリプトとして扱い、正規形に揃える。
func parseScriptID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", model.NewScriptNotFoundError(id)
	}
	return parsed.String(), nil
}
