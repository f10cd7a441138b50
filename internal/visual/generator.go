// Package visual は完成したスクリプトから絵コンテを生成し、画像URLへ展開する。
package visual

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hitoshi/scriptgo/internal/model"
	"github.com/hitoshi/scriptgo/internal/normalize"
	"github.com/hitoshi/scriptgo/internal/prompt"
)

// JSONCompleter はJSONモードでの一括生成インターフェース。
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Generator は絵コンテ生成器。
// モデルが指示どおりの画風・語数で返したかの検証は行わない。
type Generator struct {
	client JSONCompleter
	logger *slog.Logger
}

// NewGenerator はGeneratorを生成する。
func NewGenerator(client JSONCompleter, logger *slog.Logger) *Generator {
	return &Generator{
		client: client,
		logger: logger,
	}
}

// Generate はスクリプトから絵コンテを生成する。
// プロバイダのエラーはそのまま返し、応答を解釈できない場合はGENERATION_MALFORMED、
// ショットが1件も無い場合はGENERATION_EMPTYを返す。
func (g *Generator) Generate(ctx context.Context, script string, req model.GenerationRequest) (*model.VisualSet, error) {
	raw, err := g.client.CompleteJSON(ctx, prompt.Visuals(script, req))
	if err != nil {
		return nil, err
	}

	set, ok := decodeVisualSet(raw)
	if !ok {
		g.logger.Warn("絵コンテの応答をJSONとして解釈できませんでした",
			slog.Int("raw_length", len(raw)),
		)
		return nil, model.NewGenerationMalformedError()
	}

	set.Visuals = compactVisuals(set.Visuals)
	if len(set.Visuals) == 0 {
		return nil, model.NewGenerationEmptyError()
	}
	return set, nil
}

// decodeVisualSet は{"visuals":[...],"thumbnailPrompt":"..."}形式を読み取る。
// ショットの配列だけが返ってきた場合も受け付ける。
func decodeVisualSet(raw string) (*model.VisualSet, bool) {
	value, ok := normalize.JSON(raw)
	if !ok {
		return nil, false
	}

	if value[0] == '[' {
		var visuals []model.Visual
		if err := json.Unmarshal(value, &visuals); err != nil {
			return nil, false
		}
		return &model.VisualSet{Visuals: visuals}, true
	}

	var set model.VisualSet
	if err := json.Unmarshal(value, &set); err != nil {
		return nil, false
	}
	return &set, true
}

// compactVisuals は画像プロンプトが空のショットを取り除く。
func compactVisuals(visuals []model.Visual) []model.Visual {
	out := make([]model.Visual, 0, len(visuals))
	for _, v := range visuals {
		if strings.TrimSpace(v.ImagePrompt) == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
