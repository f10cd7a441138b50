package model

import (
	"strings"
	"time"
)

// User はScriptGoのアカウント。スクリプトの所有者であり、メールの宛先でもある。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName はメール本文や画面の呼びかけに使う名前を返す。
// Nameが空の場合はメールアドレスのローカル部、それも無ければ "there"。
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return "there"
}

// Identity はGoogleアカウントとUserの紐付け。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はCookieで受け渡すログインセッション。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active はnow時点でセッションが有効かどうかを返す。
func (s *Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
