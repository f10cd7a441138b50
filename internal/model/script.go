package model

import "time"

// DefaultScriptTitle はタイトル未入力で保存されたスクリプトに付与するタイトル。
const DefaultScriptTitle = "Untitled Script"

// Script はユーザーが保存した生成コンテンツを表す。
// 所有者はUserIDのユーザーのみで、他ユーザーと共有されることはない。
type Script struct {
	ID           string
	UserID       string
	Title        string
	Platform     Platform
	Content      ScriptContent
	Label        string
	ScheduledFor *time.Time // カレンダーから保存した場合の配信予定日
	DeliveredAt  *time.Time // 予約配信メールの送信日時
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// DeliveryAttempts は予約配信に失敗した回数。
	// MaxAttemptsに達した行は配信対象から外れる。
	DeliveryAttempts int
}

// ScriptContent はscriptsテーブルのcontent列（JSONB）に格納される本文。
type ScriptContent struct {
	Text      string     `json:"text"`
	Visuals   *VisualSet `json:"visuals,omitempty"`
	Language  string     `json:"language,omitempty"`
	Framework Framework  `json:"framework,omitempty"`
}

// VisualSet はスクリプトに対応する絵コンテ（ショットリスト）を表す。
// 画像そのものは保持せず、表示時にプロンプトを画像URLへ埋め込む。
type VisualSet struct {
	Visuals         []Visual `json:"visuals"`
	ThumbnailPrompt string   `json:"thumbnailPrompt"`
}

// Visual は絵コンテの1ショット。
type Visual struct {
	Shot        string `json:"shot"`
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
}

// CalendarItem はコンテンツカレンダーの1日分の項目。
type CalendarItem struct {
	Day     int    `json:"day"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Label   string `json:"label,omitempty"`
}

// ScriptFilter はスクリプト一覧の絞り込み条件。
// ゼロ値のフィールドは条件に含めない。
type ScriptFilter struct {
	Platform Platform
	Label    string
	Limit    int
}
