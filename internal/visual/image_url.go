package visual

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/scriptgo/internal/model"
)

// PromptPlaceholder はテンプレート中でプロンプトに置き換えられる文字列。
const PromptPlaceholder = "{prompt}"

// DefaultImageURLTemplate は画像レンダリングサービスの既定URLパターン。
const DefaultImageURLTemplate = "https://image.pollinations.ai/prompt/" + PromptPlaceholder

// maxSeed はシード値の上限（この値未満）。
const maxSeed = 1_000_000_000

// ImageURLBuilder は画像生成プロンプトを外部レンダリングサービスのURLへ埋め込む。
// 画像の取得や保存は行わない。
type ImageURLBuilder struct {
	Template string
	Width    int
	Height   int
}

// Build はプロンプトをURLエスケープしてテンプレートへ埋め込み、
// width, height, seed, nologo のクエリを付与したURLを返す。
func (b ImageURLBuilder) Build(prompt string, seed int64) string {
	tmpl := b.Template
	if tmpl == "" {
		tmpl = DefaultImageURLTemplate
	}

	raw := strings.ReplaceAll(tmpl, PromptPlaceholder, url.PathEscape(strings.TrimSpace(prompt)))

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	if b.Width > 0 {
		q.Set("width", strconv.Itoa(b.Width))
	}
	if b.Height > 0 {
		q.Set("height", strconv.Itoa(b.Height))
	}
	q.Set("seed", strconv.FormatInt(seed, 10))
	q.Set("nologo", "true")
	u.RawQuery = q.Encode()

	return u.String()
}

// NewSeed は現在時刻からシード値を作る。
// 呼び出しごとに異なる値になるため、同じ画像を再表示したい場合は呼び出し元が値を保持して再利用する。
func NewSeed() int64 {
	return time.Now().UnixNano() % maxSeed
}

// Shot は画像URL付きの絵コンテの1ショット。
type Shot struct {
	Shot        string `json:"shot"`
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
	ImageURL    string `json:"imageUrl"`
}

// Storyboard は画像URLへ展開済みの絵コンテ。
type Storyboard struct {
	Shots           []Shot `json:"visuals"`
	ThumbnailPrompt string `json:"thumbnailPrompt"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	Seed            int64  `json:"seed"`
}

// Storyboard は全ショットとサムネイルに同じシードを使って画像URLを展開する。
func (b ImageURLBuilder) Storyboard(set *model.VisualSet, seed int64) *Storyboard {
	board := &Storyboard{
		Shots:           make([]Shot, 0, len(set.Visuals)),
		ThumbnailPrompt: set.ThumbnailPrompt,
		Seed:            seed,
	}
	for _, v := range set.Visuals {
		board.Shots = append(board.Shots, Shot{
			Shot:        v.Shot,
			Description: v.Description,
			ImagePrompt: v.ImagePrompt,
			ImageURL:    b.Build(v.ImagePrompt, seed),
		})
	}
	if strings.TrimSpace(set.ThumbnailPrompt) != "" {
		board.ThumbnailURL = b.Build(set.ThumbnailPrompt, seed)
	}
	return board
}
