// Package delivery はカレンダーから予約保存したスクリプトのメール配信ジョブを提供する。
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/scriptgo/internal/metrics"
	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/notify"
)

// ScriptStore は配信対象スクリプトの取得と配信結果記録のインターフェース。
type ScriptStore interface {
	ListDueForDelivery(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*model.Script, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id string, at time.Time) error
}

// UserFinder は配信先ユーザーの取得インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Configured() bool
	Send(ctx context.Context, kind notify.Kind, recipient string, data notify.Data) notify.SendResult
}

// Config は配信ジョブの設定パラメータ。
type Config struct {
	// Interval はジョブの実行間隔（デフォルト: 5分）。
	Interval time.Duration
	// MaxPerCycle は1サイクルあたりの最大配信数（デフォルト: 50）。
	MaxPerCycle int
	// MaxAttempts は1スクリプトあたりの送信試行の上限（デフォルト: 3）。
	// 上限に達したスクリプトは以後の配信対象から外れる。
	MaxAttempts int
}

// DefaultConfig はデフォルトの配信ジョブ設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Minute,
		MaxPerCycle: 50,
		MaxAttempts: 3,
	}
}

// Job は予約スクリプトの配信ジョブ。
// scheduled_forを過ぎた未配信スクリプトを所有者へメールし、成功したものを配信済みにする。
type Job struct {
	scripts ScriptStore
	users   UserFinder
	mailer  Mailer
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	config  Config
	now     func() time.Time

	consecutiveErrors int
	backoffUntil      time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	scripts ScriptStore,
	users UserFinder,
	mailer Mailer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Job {
	if collector == nil {
		collector = metrics.Nop{}
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxPerCycle <= 0 {
		config.MaxPerCycle = defaults.MaxPerCycle
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	return &Job{
		scripts: scripts,
		users:   users,
		mailer:  mailer,
		metrics: collector,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Start は配信ジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("予約配信ジョブを開始しました",
		slog.Duration("interval", j.config.Interval),
		slog.Int("max_per_cycle", j.config.MaxPerCycle),
		slog.Int("max_attempts", j.config.MaxAttempts),
	)

	// 起動直後に1回実行
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("予約配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("予約配信ジョブを停止しました")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("予約配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の配信サイクルを実行し、配信済みにした件数を返す。
// メール送信が未設定の場合は何も配信済みにせずスキップする。
// 送信に失敗したスクリプトは失敗回数を記録し、次回以降は未試行の予約より後に回す。
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	start := j.now()

	if !j.mailer.Configured() {
		j.logger.Info("メール送信が未設定のため予約配信をスキップします")
		return 0, nil
	}

	if !j.backoffUntil.IsZero() && start.Before(j.backoffUntil) {
		j.logger.Info("予約配信ジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", j.backoffUntil),
		)
		return 0, nil
	}

	due, err := j.scripts.ListDueForDelivery(ctx, start, j.config.MaxAttempts, j.config.MaxPerCycle)
	if err != nil {
		return 0, fmt.Errorf("配信対象スクリプトの取得に失敗しました: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	j.logger.Info("予約配信サイクルを開始します",
		slog.Int("due_scripts", len(due)),
	)

	// 同じユーザーの予約が複数ある場合に備えてサイクル内でキャッシュする
	users := make(map[string]*model.User)
	var delivered, failed int

	for _, s := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		user, ok := users[s.UserID]
		if !ok {
			user, err = j.users.FindByID(ctx, s.UserID)
			if err != nil {
				j.logger.Error("配信先ユーザーの取得に失敗しました",
					slog.String("script_id", s.ID),
					slog.String("user_id", s.UserID),
					slog.String("error", err.Error()),
				)
				failed++
				continue
			}
			users[s.UserID] = user
		}
		if user == nil || user.Email == "" {
			j.logger.Warn("配信先ユーザーが存在しないためスキップします",
				slog.String("script_id", s.ID),
				slog.String("user_id", s.UserID),
			)
			j.recordFailure(ctx, s)
			continue
		}

		result := j.mailer.Send(ctx, notify.KindScriptDelivery, user.Email, notify.Data{
			Name:        user.DisplayName(),
			ScriptTitle: s.Title,
			ScriptText:  s.Content.Text,
		})
		if result.NotConfigured {
			// 実行中に設定が外れた場合は残りを次回に回す
			break
		}
		if !result.Success {
			j.logger.Error("予約スクリプトのメール送信に失敗しました",
				slog.String("script_id", s.ID),
				slog.Int("attempt", s.DeliveryAttempts+1),
				slog.String("error", result.Message),
			)
			j.recordFailure(ctx, s)
			failed++
			continue
		}

		if err := j.scripts.MarkDelivered(ctx, s.ID, j.now()); err != nil {
			j.logger.Error("配信済みの記録に失敗しました",
				slog.String("script_id", s.ID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		delivered++
	}

	j.metrics.RecordDelivered(delivered)

	if failed > 0 && delivered == 0 {
		j.consecutiveErrors++
		if backoff := calculateErrorBackoff(j.consecutiveErrors); backoff > 0 {
			j.backoffUntil = j.now().Add(backoff)
			j.logger.Warn("連続エラーによりバックオフを適用します",
				slog.Int("consecutive_errors", j.consecutiveErrors),
				slog.Duration("backoff_duration", backoff),
			)
		}
	} else {
		j.consecutiveErrors = 0
		j.backoffUntil = time.Time{}
	}

	j.logger.Info("予約配信サイクルが完了しました",
		slog.Int("delivered", delivered),
		slog.Int("failed", failed),
		slog.Int("due_scripts", len(due)),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)

	return delivered, nil
}

// recordFailure は送信失敗を記録する。記録自体の失敗はログに残して続行する。
func (j *Job) recordFailure(ctx context.Context, s *model.Script) {
	if err := j.scripts.RecordDeliveryFailure(ctx, s.ID, j.now()); err != nil {
		j.logger.Error("配信失敗の記録に失敗しました",
			slog.String("script_id", s.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.DeliveryAttempts+1 >= j.config.MaxAttempts {
		j.logger.Warn("送信試行の上限に達したため予約配信を打ち切ります",
			slog.String("script_id", s.ID),
			slog.Int("attempts", s.DeliveryAttempts+1),
		)
	}
}

// calculateErrorBackoff は連続失敗サイクル数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
