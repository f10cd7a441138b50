package model

import (
	"strings"
	"time"
)

// Tone は生成する文章のトーン。
type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneFriendly     Tone = "Friendly"
	ToneWitty        Tone = "Witty"
	TonePersuasive   Tone = "Persuasive"
	ToneEdgy         Tone = "Edgy"
)

// Platform は投稿先プラットフォーム。
type Platform string

const (
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformYouTube   Platform = "YouTube"
	PlatformTikTok    Platform = "TikTok"
	PlatformInstagram Platform = "Instagram"
)

// Framework はマーケティングフレームワーク。
type Framework string

const (
	FrameworkNone Framework = "None"
	FrameworkAIDA Framework = "AIDA"
	FrameworkPAS  Framework = "PAS"
)

// DefaultLanguage は言語未指定時の出力言語。
const DefaultLanguage = "English"

// GenerationRequest は生成リクエストのパラメータ。永続化はしない。
// 列挙値に未知の値が来てもエラーにはせず、プロンプト側のデフォルト分岐に任せる。
type GenerationRequest struct {
	Topic     string
	Tone      Tone
	Platform  Platform
	Language  string
	Framework Framework
	Days      int        // カレンダー生成時のみ使用
	StartDate *time.Time // カレンダー生成時の任意の開始日
}

// WithDefaults は未指定の言語とフレームワークを既定値で補ったコピーを返す。
func (r GenerationRequest) WithDefaults() GenerationRequest {
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if r.Framework == "" {
		r.Framework = FrameworkNone
	}
	return r
}

// HasTopic はトピックが空白以外の文字を含むかを返す。
func (r GenerationRequest) HasTopic() bool {
	return strings.TrimSpace(r.Topic) != ""
}
