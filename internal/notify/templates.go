package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Kind はメールの種別。
type Kind string

const (
	KindWelcome        Kind = "welcome"
	KindPasswordReset  Kind = "password-reset"
	KindScriptDelivery Kind = "script-delivery"
)

// Data はテンプレートに渡す値。種別ごとに使うフィールドが異なる。
type Data struct {
	Name         string // welcome
	ResetURL     string // password-reset
	ScriptTitle  string // script-delivery
	ScriptText   string // script-delivery（プレーンテキスト）
	DashboardURL string
	// ScriptHTML はNotifierがScriptTextから組み立てるサニタイズ済みHTML。
	ScriptHTML htmltemplate.HTML
}

// kindTemplate は種別ごとの送信元・件名・本文。
type kindTemplate struct {
	fromLocal string // 送信元アドレスのローカル部
	subject   *texttemplate.Template
	body      *htmltemplate.Template
}

const layoutStart = `<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">`
const buttonStyle = `display: inline-block; padding: 12px 24px; background-color: #10b981; color: white; text-decoration: none; border-radius: 8px; font-weight: bold; margin-top: 20px;`

var templates = map[Kind]kindTemplate{
	KindWelcome: {
		fromLocal: "onboarding",
		subject:   texttemplate.Must(texttemplate.New("welcome-subject").Parse(`Welcome to ScriptGo! 🚀`)),
		body: htmltemplate.Must(htmltemplate.New("welcome").Parse(layoutStart + `
<h1 style="color: #10b981;">Welcome to ScriptGo, {{.Name}}!</h1>
<p>We're thrilled to have you on board. Your journey to creating high-fidelity, viral content starts now.</p>
<p>With ScriptGo, you can:</p>
<ul>
<li>Generate AI-powered scripts in seconds</li>
<li>Optimize content for LinkedIn, YouTube, TikTok, and Instagram</li>
<li>Plan your content strategy with our visual calendar</li>
</ul>
<a href="{{.DashboardURL}}" style="` + buttonStyle + `">Go to Dashboard</a>
<p style="margin-top: 30px; color: #64748b; font-size: 14px;">If you have any questions, just reply to this email!</p>
</div>`)),
	},
	KindPasswordReset: {
		fromLocal: "auth",
		subject:   texttemplate.Must(texttemplate.New("reset-subject").Parse(`Reset your ScriptGo password`)),
		body: htmltemplate.Must(htmltemplate.New("reset").Parse(layoutStart + `
<h1>Reset Password</h1>
<p>You requested a password reset for your ScriptGo account.</p>
<p>Click the button below to set a new password:</p>
<a href="{{.ResetURL}}" style="` + buttonStyle + `">Reset Password</a>
<p style="margin-top: 30px; color: #64748b; font-size: 14px;">If you didn't request this, you can safely ignore this email.</p>
</div>`)),
	},
	KindScriptDelivery: {
		fromLocal: "studio",
		subject:   texttemplate.Must(texttemplate.New("script-subject").Parse(`Your Script: {{.ScriptTitle}}`)),
		body: htmltemplate.Must(htmltemplate.New("script").Parse(layoutStart + `
<h2 style="color: #10b981;">Your Script is Ready!</h2>
<p>Here is the content for <strong>{{.ScriptTitle}}</strong>:</p>
<div style="background-color: #f1f5f9; padding: 20px; border-radius: 12px; margin: 20px 0; border: 1px solid #e2e8f0;">
{{.ScriptHTML}}
</div>
<p>Keep creating!</p>
</div>`)),
	},
}

// render は種別のテンプレートから件名と本文を生成する。
func render(kind Kind, data Data) (subject, body, fromLocal string, err error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", "", fmt.Errorf("未知のメール種別です: %s", kind)
	}

	var sb bytes.Buffer
	if err := tmpl.subject.Execute(&sb, data); err != nil {
		return "", "", "", fmt.Errorf("件名の生成に失敗しました: %w", err)
	}
	var bb bytes.Buffer
	if err := tmpl.body.Execute(&bb, data); err != nil {
		return "", "", "", fmt.Errorf("本文の生成に失敗しました: %w", err)
	}
	return sb.String(), bb.String(), tmpl.fromLocal, nil
}
