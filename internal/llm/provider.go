// Package llm は外部テキスト生成APIの呼び出しを提供する。
// Gemini / Anthropic / OpenAI の各プロバイダを同じインターフェースで扱い、
// 設定済みの認証情報から固定の優先順位で1つを選ぶ。
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured はどのプロバイダの認証情報も設定されていないことを表す。
var ErrNotConfigured = errors.New("テキスト生成プロバイダが設定されていません")

// Request はプロバイダへの生成リクエスト。
type Request struct {
	Prompt string
	Model  string // 空の場合はプロバイダの既定モデル
	JSON   bool   // JSONオブジェクトでの応答を要求する
}

// Chunk はストリーミング生成の断片。
// Errが非nilのチャンクは終端シグナルで、その後チャネルはクローズされる。
type Chunk struct {
	Text string
	Err  error
}

// Provider はテキスト生成プロバイダのインターフェース。
type Provider interface {
	// Name はログとメトリクスに使うプロバイダ名を返す。
	Name() string
	// Complete は生成結果の全文を返す。
	Complete(ctx context.Context, req Request) (string, error)
	// Stream は生成結果を断片ごとに送るチャネルを返す。
	// 断片はトランスポートの到着順に送られ、終了時にチャネルはクローズされる。
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// ProviderError はプロバイダが非2xxステータスを返した場合のエラー。
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s がステータス %d を返しました", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s がステータス %d を返しました: %s", e.Provider, e.StatusCode, e.Message)
}

// StatusCodeOf はエラーチェーン中のProviderErrorのステータスコードを返す。
// ProviderErrorを含まない場合は0を返す。
func StatusCodeOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// sendChunk はコンテキストがキャンセルされていなければチャンクを送る。
// 送信できなかった場合はfalseを返す。
func sendChunk(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- c:
		return true
	}
}
