// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限から猶予期間（デフォルト7日）を過ぎたセッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// DefaultGraceDays は期限切れから削除までの猶予日数。
const DefaultGraceDays = 7

// SessionPurger は期限切れセッションを一括削除するインターフェース。
// repository.PostgresSessionRepoが満たす。
type SessionPurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job は期限切れセッションの削除ジョブ。
// 削除は冪等で、何度実行しても結果は変わらない。
type Job struct {
	sessions  SessionPurger
	logger    *slog.Logger
	now       func() time.Time
	GraceDays int
}

// NewJob は新しいJobを生成する。
func NewJob(sessions SessionPurger, logger *slog.Logger) *Job {
	return &Job{
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
		GraceDays: DefaultGraceDays,
	}
}

// Start はinterval毎にRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("grace_days", j.GraceDays),
	)

	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}

// Cutoff はこの時刻より前に期限切れになったセッションを削除対象とする境界を返す。
func (j *Job) Cutoff() time.Time {
	return j.now().AddDate(0, 0, -j.GraceDays)
}

// Run は猶予期間を過ぎた期限切れセッションを削除し、削除件数を返す。
// 削除対象がない場合でもエラーにならない。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := j.now()
	cutoff := j.Cutoff()

	deleted, err := j.sessions.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_days", j.GraceDays),
		)
		return 0, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("grace_days", j.GraceDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}
