// Package prompt は生成リクエストから外部LLMへ送る指示文を組み立てる。
// すべての関数は副作用を持たず、同じ入力に対して常に同じ文字列を返す。
package prompt

import (
	"fmt"
	"strings"

	"github.com/hitoshi/scriptgo/internal/model"
)

// カレンダー日数の許容範囲
const (
	MinCalendarDays = 3
	MaxCalendarDays = 30
)

// minImagePromptWords は画像生成プロンプトに求める最低語数。
const minImagePromptWords = 30

// ClampDays はカレンダー日数を許容範囲に丸める。
// 0以下や上限超過の値でもパニックせず範囲内の値を返す。
func ClampDays(days int) int {
	if days < MinCalendarDays {
		return MinCalendarDays
	}
	if days > MaxCalendarDays {
		return MaxCalendarDays
	}
	return days
}

// Script は単発スクリプト生成用のプロンプトを組み立てる。
func Script(req model.GenerationRequest) string {
	req = req.WithDefaults()

	var b strings.Builder
	b.WriteString("SYSTEM: You are a Top-Tier Content Ghostwriter and Growth Strategist for Founders.\n")
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "TONE: %s\n", req.Tone)
	fmt.Fprintf(&b, "LANGUAGE: %s\n", req.Language)
	fmt.Fprintf(&b, "PLATFORM: %s\n\n", req.Platform)

	b.WriteString("GUIDELINES:\n")
	b.WriteString("1. THE HOOK: The first line must be an irresistible scroll-stopper (Stat, Question, Contradiction, or strong Opinion).\n")
	b.WriteString("2. THE RE-HOOK: Sustain interest by identifying a pain point or providing context immediately after the hook.\n")
	b.WriteString("3. THE BODY: Concise, punchy sentences. High information density. No fluff.\n")
	b.WriteString("4. THE CTA: A clear, natural transition to an action or a thought-provoking question.\n\n")

	b.WriteString(platformStructure(req.Platform, req.Language))
	if overlay := frameworkOverlay(req.Framework); overlay != "" {
		b.WriteString("\n")
		b.WriteString(overlay)
	}

	b.WriteString("\nRULES:\n")
	fmt.Fprintf(&b, "- %s\n", languageDirective(req.Language))
	fmt.Fprintf(&b, "- %s\n", toneDirective(req.Tone))
	for _, rule := range negativeRules() {
		fmt.Fprintf(&b, "- %s\n", rule)
	}

	b.WriteString("\nReturn ONLY the final content in a clean, professional format.\n")
	fmt.Fprintf(&b, "IMPORTANT: The entire delivery MUST be in %s.\n", req.Language)
	return b.String()
}

// Stream はストリーミング生成エンドポイント用のプロンプトを組み立てる。
// 出力はそのままUIへ流れるので、見出しとメタ発言を禁止する。
func Stream(req model.GenerationRequest) string {
	req = req.WithDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM: You are an expert Content Creator. Your goal is to write high-converting content for %s.\n", req.Platform)
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "TONE: %s\n", req.Tone)
	fmt.Fprintf(&b, "LANGUAGE: %s\n", req.Language)
	fmt.Fprintf(&b, "FRAMEWORK: %s\n\n", req.Framework)

	b.WriteString("### MANDATORY RULES:\n")
	fmt.Fprintf(&b, "1. LANGUAGE: %s\n", languageDirective(req.Language))
	b.WriteString("2. START IMMEDIATELY with the content.\n")
	b.WriteString("3. NO section headers or labels (hook, intro, body, script).\n")
	b.WriteString("4. NO meta-talk. Just the final content.\n")
	fmt.Fprintf(&b, "5. For %s, ensure the format is perfect (%s).\n", req.Platform, platformFormatHint(req.Platform))
	fmt.Fprintf(&b, "6. TONE: %s\n", toneDirective(req.Tone))
	if overlay := frameworkOneLiner(req.Framework); overlay != "" {
		fmt.Fprintf(&b, "7. FRAMEWORK: %s\n", overlay)
	}

	b.WriteString("\nWrite the content now:")
	return b.String()
}

// Calendar は複数日分のコンテンツカレンダー生成用プロンプトを組み立てる。
// 日数はClampDaysで許容範囲に丸めてから埋め込む。
func Calendar(req model.GenerationRequest) string {
	req = req.WithDefaults()
	days := ClampDays(req.Days)

	var b strings.Builder
	fmt.Fprintf(&b, "TASK: Generate a %d-day content calendar.\n", days)
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "TONE: %s\n", req.Tone)
	fmt.Fprintf(&b, "PLATFORM: %s\n", req.Platform)
	fmt.Fprintf(&b, "LANGUAGE: %s\n", req.Language)
	if overlay := frameworkOneLiner(req.Framework); overlay != "" {
		fmt.Fprintf(&b, "FRAMEWORK: %s Apply it to each post.\n", overlay)
	}
	if req.StartDate != nil {
		fmt.Fprintf(&b, "START DATE: %s (day 1 is published on this date)\n", req.StartDate.Format("2006-01-02 (Monday)"))
	}

	fmt.Fprintf(&b, "\nDeliver EXACTLY %d unique content pieces, one for each consecutive day.\n\n", days)

	b.WriteString("RESPONSE FORMAT:\n")
	fmt.Fprintf(&b, "You MUST return ONLY a valid JSON object with a \"calendar\" key containing an array of %d objects.\n", days)
	b.WriteString("Each object in the \"calendar\" array must have exactly these fields:\n")
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  \"day\": number (1 to %d),\n", days)
	b.WriteString("  \"title\": \"A short, catchy title for this day's content\",\n")
	b.WriteString("  \"content\": \"The full script or post content following the platform and tone requirements\"\n")
	b.WriteString("}\n\n")

	b.WriteString("PLATFORM SPECIFIC RULES:\n")
	b.WriteString(calendarPlatformRule(req.Platform))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "TONE: %s\n", toneDirective(req.Tone))
	fmt.Fprintf(&b, "Language: The entire response (titles and content) MUST be in %s. %s\n", req.Language, languageDirective(req.Language))
	return b.String()
}

// Visuals は完成したスクリプトから絵コンテ（ショットリストと画像生成プロンプト）を
// 生成させるためのプロンプトを組み立てる。
func Visuals(script string, req model.GenerationRequest) string {
	req = req.WithDefaults()

	var b strings.Builder
	b.WriteString("SYSTEM: You are a Professional Video Director and Visual Storyboard Artist.\n")
	fmt.Fprintf(&b, "TOPIC: %s\n", req.Topic)
	fmt.Fprintf(&b, "TONE: %s\n", req.Tone)
	fmt.Fprintf(&b, "PLATFORM: %s\n", req.Platform)
	b.WriteString("SCRIPT:\n")
	b.WriteString(strings.TrimSpace(script))
	b.WriteString("\n\n")

	b.WriteString("GOAL: Create a detailed visual storyboard / shot list for this script.\n\n")

	b.WriteString("GUIDELINES:\n")
	b.WriteString("1. For each logical section of the script, describe EXACTLY what should be shown on screen.\n")
	b.WriteString("2. Include details about lighting, camera angles, color palette, and any text overlays.\n")
	fmt.Fprintf(&b, "3. Align the visuals with %s best practices (%s).\n", req.Platform, visualPacingHint(req.Platform))
	b.WriteString("4. Keep a consistent character and art style across every shot.\n")
	b.WriteString("5. Do NOT use robots, circuit boards, or generic technology imagery unless the topic is explicitly about technology.\n")
	fmt.Fprintf(&b, "6. Every imagePrompt must be a self-contained image-generation prompt of at least %d words.\n", minImagePromptWords)
	b.WriteString("7. Also write one thumbnailPrompt for the cover image.\n\n")

	b.WriteString("RESPONSE FORMAT:\n")
	b.WriteString("Return ONLY a valid JSON object:\n")
	b.WriteString("{\n")
	b.WriteString("  \"visuals\": [\n")
	b.WriteString("    {\"shot\": \"Shot 1\", \"description\": \"What happens on screen\", \"imagePrompt\": \"Detailed image-generation prompt\"}\n")
	b.WriteString("  ],\n")
	b.WriteString("  \"thumbnailPrompt\": \"Detailed image-generation prompt for the cover image\"\n")
	b.WriteString("}\n")
	return b.String()
}

// platformStructure はプラットフォームごとの構成ルールを返す。
// 未知のプラットフォームは短尺動画の構成にフォールスルーする。
func platformStructure(platform model.Platform, language string) string {
	switch platform {
	case model.PlatformLinkedIn:
		return fmt.Sprintf(`CONTEXT: You are a LinkedIn Ghostwriter.
GOAL: Write a high-engagement text post (NO video scripts, NO audio cues) in %s.

STRUCTURE:
1. HOOK: A punchy, one-line opening to grab attention.
2. RE-HOOK: Briefly expand on the problem or situation.
3. BODY: Deliver value, a story, or a list of insights. Use short paragraphs and line breaks for readability.
4. TAKEAWAY/CTA: Summarize or ask a question to drive comments.
5. HASHTAGS: 3-5 relevant hashtags.

FORMAT: Plain text, ready to copy-paste into LinkedIn.
`, language)
	case model.PlatformYouTube:
		return fmt.Sprintf(`CONTEXT: You are a Professional YouTube Scriptwriter.
GOAL: Write a compelling video script for a long-form video in %s.

STRUCTURE:
1. TITLE OPTIONS: 3 title ideas.
2. INTRO (0:00): Catchy hook, what the viewer will learn.
3. BODY: Broken down into clear sections. Use [Visual Cue] brackets for screen action, but focus on the spoken audio.
4. OUTRO: Summary and Call to Action (Subscribe).

FORMAT: Script format with section headers.
`, language)
	default:
		return fmt.Sprintf(`CONTEXT: You are a Viral Short-Form Video Expert (TikTok/Reels).
GOAL: Write a fast-paced, 60-second video script in %s.

STRUCTURE:
- HOOK (0-3s): Visual or audio hook to stop scrolling.
- VALUE (3-50s): Fast tips or story.
- CTA (50-60s): "Follow for more" or similar.

FORMAT: Two-column style simplified into text:
[Visual]: description
[Audio]: spoken words
`, language)
	}
}

// calendarPlatformRule はカレンダー生成時のプラットフォーム別ルールを返す。
func calendarPlatformRule(platform model.Platform) string {
	switch platform {
	case model.PlatformLinkedIn:
		return "Text only posts, no video scripts, NO audio cues or visual brackets. Pure engagement text."
	case model.PlatformYouTube:
		return "Video script format with intro, body, and outro."
	default:
		return "Short-form video script with [Visual] and [Audio] cues."
	}
}

func platformFormatHint(platform model.Platform) string {
	switch platform {
	case model.PlatformLinkedIn, model.PlatformInstagram:
		return "line breaks and 3-5 hashtags at the end"
	case model.PlatformYouTube:
		return "spoken script with clear sections"
	default:
		return "short spoken lines with [Visual] and [Audio] cues"
	}
}

func visualPacingHint(platform model.Platform) string {
	switch platform {
	case model.PlatformYouTube:
		return "cinematic framing, slower pacing"
	case model.PlatformLinkedIn:
		return "clean, professional stills"
	default:
		return "fast cuts, vertical 9:16 framing"
	}
}

// frameworkOverlay はスクリプト用の詳細なフレームワーク指示を返す。
// Noneや未知の値の場合は空文字を返す。
func frameworkOverlay(framework model.Framework) string {
	switch framework {
	case model.FrameworkAIDA:
		return `MARKETING FRAMEWORK: Use the AIDA model (Attention, Interest, Desire, Action).
- Attention: Grasp the reader's attention with a powerful opening.
- Interest: Provide interesting facts or insights to keep them engaged.
- Desire: Make them want the product/service or agree with your point.
- Action: Direct the reader to take a clear next step.
`
	case model.FrameworkPAS:
		return `MARKETING FRAMEWORK: Use the PAS model (Problem, Agitation, Solution).
- Problem: Clearly identify a specific pain point or problem.
- Agitation: Stir up the emotions around that problem and the consequences of not solving it.
- Solution: Present the topic/service/product as the definitive answer.
`
	default:
		return ""
	}
}

func frameworkOneLiner(framework model.Framework) string {
	switch framework {
	case model.FrameworkAIDA:
		return "Use the AIDA model (Attention, Interest, Desire, Action)."
	case model.FrameworkPAS:
		return "Use the PAS model (Problem, Agitation, Solution)."
	default:
		return ""
	}
}

// languageDirective は出力言語の指示を返す。
// Tamilの場合はタミル文字ではなくローマ字表記（Tanglish）を指示する。
func languageDirective(language string) string {
	if strings.EqualFold(strings.TrimSpace(language), "Tamil") {
		return `You MUST use TANGLISH (Tamil words written in English/Roman script). Example: "Nalla irukkengala?" instead of Tamil script.`
	}
	return fmt.Sprintf("Use %s.", language)
}

// toneDirective はトーンの指示を返す。Professional以外はすべてカジュアル寄りに分岐する。
func toneDirective(tone model.Tone) string {
	if tone == model.ToneProfessional {
		return "Use polished, formal language."
	}
	return "Use casual, enthusiastic, conversational language. Mixing everyday phrases from the reader's language is fine."
}

func negativeRules() []string {
	return []string{
		"Do NOT print section labels (hook, re-hook, intro, body, script) in the output. The structure above is for planning only.",
		"Do NOT add meta-talk (\"Here is your post\", \"Sure!\"). Start with the content itself.",
		`Avoid fluff phrases like "In today's fast-paced world" or "Let's dive in".`,
	}
}
