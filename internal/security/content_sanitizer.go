// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は生成モデルの出力やユーザー入力をメール本文・件名に
// 埋め込む前に無害化する。bluemondayの許可リストポリシーを使い、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はHTMLを許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img）のみに絞る。
	// script, iframe, styleタグおよびon*イベント属性は除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// FormatText は生成テキストを段落(p)と改行(br)のHTMLに変換してからサニタイズする。
	FormatText(text string) string

	// StripTags は全てのタグを除去したプレーンテキストを返す。件名やタイトル用。
	StripTags(s string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - imgのsrc属性: httpsスキームのみ
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// メールクライアント上で相対URLは解決できない
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// FormatText は空行区切りを段落、単独の改行を<br>にしてからサニタイズする。
// テキスト中の<や&はサニタイズ時にエスケープされる。
func (s *contentSanitizer) FormatText(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}
	return s.policy.Sanitize(b.String())
}

// StripTags は全てのタグを除去する。
// StrictPolicyは&などをエスケープするため、件名に使う場合は呼び出し側でtext/templateを使うこと。
func (s *contentSanitizer) StripTags(str string) string {
	return strings.TrimSpace(s.strict.Sanitize(str))
}
