// Package notify はメール通知（Resend API）の送信機能を提供する。
// 送信失敗は呼び出し元の主処理を妨げないよう、構造化された結果として返す。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// defaultResendEndpoint はResendのメール送信エンドポイント。
	defaultResendEndpoint = "https://api.resend.com/emails"
	// placeholderAPIKey はサンプル設定に含まれるダミーキー。未設定として扱う。
	placeholderAPIKey = "re_123456789"
	// maxErrorBodyBytes はエラー応答から読み取る最大バイト数。
	maxErrorBodyBytes = 4096
)

// ErrNotConfigured はAPIキーが未設定のときに返す。
var ErrNotConfigured = errors.New("resend api key is not configured")

// Email は送信する1通のメール。
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendError はResendがエラーステータスを返したことを表す。
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("resend returned status %d: %s", e.StatusCode, e.Message)
}

// ResendClient はResend APIのクライアント。
type ResendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewResendClient はResendClientを生成する。
func NewResendClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *ResendClient {
	return &ResendClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		endpoint:   defaultResendEndpoint,
	}
}

// Configured はAPIキーが設定されているかを返す。ダミーキーは未設定とみなす。
func (c *ResendClient) Configured() bool {
	return c.apiKey != "" && c.apiKey != placeholderAPIKey
}

// Send はメールを送信し、Resendが採番したIDを返す。
func (c *ResendClient) Send(ctx context.Context, email Email) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(email)
	if err != nil {
		return "", fmt.Errorf("メールのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Resend APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)

		c.logger.Error("Resend APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return "", &SendError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return result.ID, nil
}
