package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultDispatchTimeout は非同期送信1件あたりの既定タイムアウト。
const defaultDispatchTimeout = 15 * time.Second

// MailSender はDispatcherが使う送信インターフェース。
type MailSender interface {
	Send(ctx context.Context, kind Kind, recipient string, data Data) SendResult
}

// Dispatcher はリクエスト処理を待たせずにメールを送る。
// 送信はリクエストのコンテキストから切り離され、独自のタイムアウトで実行される。
type Dispatcher struct {
	sender  MailSender
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。timeoutが0以下の場合は既定値を使う。
func NewDispatcher(sender MailSender, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
	}
}

// SendAsync はバックグラウンドでメールを送信する。結果はログにのみ残る。
func (d *Dispatcher) SendAsync(kind Kind, recipient string, data Data) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		result := d.sender.Send(ctx, kind, recipient, data)
		if !result.Success {
			d.logger.Warn("非同期メール送信が完了しませんでした",
				slog.String("kind", string(kind)),
				slog.String("message", result.Message),
			)
		}
	}()
}

// Wait は送信中のメールがすべて終わるまで待つ。シャットダウン時に呼ぶ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
