// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, generation, notification, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTopicRequired        = "TOPIC_REQUIRED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeProviderAuth         = "PROVIDER_AUTH_FAILED"
	ErrCodeProviderRateLimited  = "PROVIDER_RATE_LIMITED"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeGenerationFailed     = "GENERATION_FAILED"
	ErrCodeGenerationEmpty      = "GENERATION_EMPTY"
	ErrCodeGenerationMalformed  = "GENERATION_MALFORMED"
	ErrCodeScriptNotFound       = "SCRIPT_NOT_FOUND"
	ErrCodeSaveFailed           = "SAVE_FAILED"
	ErrCodeLoadFailed           = "LOAD_FAILED"
	ErrCodeDeleteFailed         = "DELETE_FAILED"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrCodeEmailNotConfigured   = "EMAIL_NOT_CONFIGURED"
	ErrCodeEmailFailed          = "EMAIL_FAILED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeCSRFInvalid          = "CSRF_INVALID"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewTopicRequiredError はトピック未入力エラーを生成する。
func NewTopicRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTopicRequired,
		Message:  "Topic is required",
		Category: "validation",
		Action:   "Describe what the content should be about.",
	}
}

// NewInvalidRequestError はリクエスト形式の不正を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewNotConfiguredError は生成プロバイダの認証情報が未設定の場合のエラーを生成する。
func NewNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  "AI provider API key is not configured. Please contact support.",
		Category: "generation",
		Action:   "Set GOOGLE_GENERATIVE_AI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY.",
	}
}

// NewProviderAuthError はプロバイダがAPIキーを拒否した場合のエラーを生成する。
func NewProviderAuthError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderAuth,
		Message:  "Invalid API key. Please check your configuration.",
		Category: "generation",
		Action:   "Verify the AI provider API key.",
	}
}

// NewProviderRateLimitedError はプロバイダのレート制限エラーを生成する。
func NewProviderRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderRateLimited,
		Message:  "Rate limit exceeded. Please try again in a moment.",
		Category: "generation",
		Action:   "Wait a moment and try again.",
	}
}

// NewProviderUnavailableError はプロバイダ側の障害を表すエラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "The AI service is temporarily unavailable. Please try again.",
		Category: "generation",
		Action:   "Try again later.",
	}
}

// NewGenerationFailedError はその他の生成失敗エラーを生成する。
func NewGenerationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  fmt.Sprintf("Error generating content: %s", reason),
		Category: "generation",
		Action:   "Try again. If the problem persists, check the provider API key and credits.",
	}
}

// NewGenerationEmptyError はモデルが有効な項目を1件も返さなかった場合のエラーを生成する。
func NewGenerationEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationEmpty,
		Message:  "Generation produced no usable output.",
		Category: "generation",
		Action:   "Try again, or rephrase the topic.",
	}
}

// NewGenerationMalformedError はモデルの応答を解釈できなかった場合のエラーを生成する。
func NewGenerationMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationMalformed,
		Message:  "The AI response could not be understood.",
		Category: "generation",
		Action:   "Try again.",
	}
}

// NewScriptNotFoundError はスクリプト未検出エラーを生成する。
func NewScriptNotFoundError(scriptID string) *APIError {
	return &APIError{
		Code:     ErrCodeScriptNotFound,
		Message:  fmt.Sprintf("Script not found: %s", scriptID),
		Category: "validation",
		Action:   "Check the script ID.",
	}
}

// NewSaveFailedError は永続化失敗エラーを生成する。
func NewSaveFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSaveFailed,
		Message:  "Failed to save",
		Category: "system",
		Action:   "Try saving again.",
	}
}

// NewLoadFailedError は読み込み失敗エラーを生成する。
func NewLoadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoadFailed,
		Message:  "Failed to load",
		Category: "system",
		Action:   "Reload and try again.",
	}
}

// NewDeleteFailedError は削除失敗エラーを生成する。
func NewDeleteFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDeleteFailed,
		Message:  "Failed to delete",
		Category: "system",
		Action:   "Try deleting again.",
	}
}

// NewConfirmationRequiredError は削除確認が付与されていない場合のエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "Deletion must be confirmed.",
		Category: "validation",
		Action:   "Repeat the request with confirm=true.",
	}
}

// NewEmailNotConfiguredError はメール送信が未設定の場合のエラーを生成する。
func NewEmailNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfigured,
		Message:  "Resend API key not configured",
		Category: "notification",
		Action:   "Set RESEND_API_KEY to enable email delivery.",
	}
}

// NewEmailFailedError はメール送信失敗エラーを生成する。
func NewEmailFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailFailed,
		Message:  fmt.Sprintf("Failed to send email: %s", reason),
		Category: "notification",
		Action:   "Try again later.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewUnauthorizedError は未ログイン・セッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to sign in to continue.",
		Category: "auth",
		Action:   "Log in with Google and try again.",
	}
}

// NewCSRFInvalidError はCSRFトークン不一致のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}
