package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	htmltemplate "html/template"
	"log/slog"
	"strings"

	"github.com/hitoshi/scriptgo/internal/metrics"
	"github.com/hitoshi/scriptgo/internal/security"
)

// notConfiguredMessage は送信設定が無い場合に返す文言。
const notConfiguredMessage = "Resend API key not configured"

// defaultRecipientName はwelcomeメールで名前が無い場合の呼びかけ。
const defaultRecipientName = "Creator"

// Sender はメール送信の実体。
type Sender interface {
	Configured() bool
	Send(ctx context.Context, email Email) (string, error)
}

// SendResult は1回の送信結果。失敗してもerrorにはせず、ここに理由を入れる。
type SendResult struct {
	Success       bool   `json:"success"`
	ID            string `json:"id,omitempty"`
	Message       string `json:"message,omitempty"`
	NotConfigured bool   `json:"-"`
}

// Options はNotifierの設定。
type Options struct {
	FromName string // 送信元の表示名
	SiteURL  string // ダッシュボードへのリンクに使う
}

// Notifier は種別ごとのテンプレートでメールを組み立てて送信する。
type Notifier struct {
	sender    Sender
	sanitizer security.ContentSanitizerService
	opts      Options
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewNotifier はNotifierを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewNotifier(sender Sender, sanitizer security.ContentSanitizerService, opts Options, collector metrics.MetricsCollector, logger *slog.Logger) *Notifier {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if opts.FromName == "" {
		opts.FromName = "ScriptGo"
	}
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Notifier{
		sender:    sender,
		sanitizer: sanitizer,
		opts:      opts,
		metrics:   collector,
		logger:    logger,
	}
}

// Configured はメール送信が可能かを返す。
func (n *Notifier) Configured() bool {
	return n.sender != nil && n.sender.Configured()
}

// Send は種別kindのメールをrecipientへ送る。
// 未設定の場合はネットワーク呼び出しを行わない。
func (n *Notifier) Send(ctx context.Context, kind Kind, recipient string, data Data) SendResult {
	if !n.Configured() {
		n.metrics.RecordEmail(string(kind), metrics.OutcomeNotConfigured)
		return SendResult{Message: notConfiguredMessage, NotConfigured: true}
	}
	if strings.TrimSpace(recipient) == "" {
		n.metrics.RecordEmail(string(kind), metrics.OutcomeFailure)
		return SendResult{Message: "recipient is required"}
	}

	data = n.prepare(kind, data)
	subject, body, fromLocal, err := render(kind, data)
	if err != nil {
		n.logger.Error("メールの生成に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		n.metrics.RecordEmail(string(kind), metrics.OutcomeFailure)
		return SendResult{Message: err.Error()}
	}

	id, err := n.sender.Send(ctx, Email{
		From:    fmt.Sprintf("%s <%s@resend.dev>", n.opts.FromName, fromLocal),
		To:      []string{recipient},
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		n.logger.Error("メール送信に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrNotConfigured) {
			n.metrics.RecordEmail(string(kind), metrics.OutcomeNotConfigured)
			return SendResult{Message: notConfiguredMessage, NotConfigured: true}
		}
		n.metrics.RecordEmail(string(kind), metrics.OutcomeFailure)
		return SendResult{Message: err.Error()}
	}

	n.logger.Info("メールを送信しました",
		slog.String("kind", string(kind)),
		slog.String("email_id", id),
	)
	n.metrics.RecordEmail(string(kind), metrics.OutcomeSuccess)
	return SendResult{Success: true, ID: id}
}

// prepare はテンプレートへ渡す前に既定値の補完とサニタイズを行う。
func (n *Notifier) prepare(kind Kind, data Data) Data {
	if data.DashboardURL == "" {
		data.DashboardURL = n.opts.SiteURL + "/dashboard"
	}
	switch kind {
	case KindWelcome:
		if strings.TrimSpace(data.Name) == "" {
			data.Name = defaultRecipientName
		}
	case KindScriptDelivery:
		// タイトルはタグを除去したプレーンテキストに戻す（エスケープはテンプレートが行う）
		data.ScriptTitle = html.UnescapeString(n.sanitizer.StripTags(data.ScriptTitle))
		if data.ScriptTitle == "" {
			data.ScriptTitle = "Untitled Script"
		}
		data.ScriptHTML = htmltemplate.HTML(n.sanitizer.FormatText(data.ScriptText))
	}
	return data
}
