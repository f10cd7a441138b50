// Package logger はアプリ全体で使うJSON構造化ロガーを組み立てる。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level はSetupで生成したロガーが共有するログレベル。設定読み込み後にSetLevelで変える。
var level = new(slog.LevelVar)

// redactedKeys は値をログに出さない属性キー（小文字）。
var redactedKeys = map[string]bool{
	"api_key":       true,
	"authorization": true,
	"cookie":        true,
	"password":      true,
	"secret":        true,
	"session_id":    true,
	"token":         true,
}

const redacted = "[REDACTED]"

// Setup はwへ出力するJSONロガーを返す。
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	}))
}

// SetupDefault はSetupのロガーをslogのデフォルトにする。wがnilならos.Stdout。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// Component はcomponent属性を付けたデフォルトロガーを返す。ワーカーのジョブ名などに使う。
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}

// SetLevel はSetupで生成した全ロガーのログレベルを変更する。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// ParseLevel はdebug / info / warn / error（大文字小文字を区別しない）をslog.Levelに変換する。
// 未知の値はinfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}
