// Package normalize は外部LLMが返した構造化テキストを一様な項目リストへ変換する。
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hitoshi/scriptgo/internal/model"
)

// Kind は解析結果の種別。
type Kind int

const (
	// KindOK は1件以上の項目を取り出せたことを表す。
	KindOK Kind = iota
	// KindEmpty はJSONとしては解釈できたが項目が見つからなかったことを表す。
	KindEmpty
	// KindMalformed はJSONとして解釈できなかったことを表す。
	KindMalformed
)

// String はログ出力用の名前を返す。
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindEmpty:
		return "empty"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// WrapperKeys は配列を包むキーとして試す名前。この順で探索する。
var WrapperKeys = []string{"calendar", "posts", "days"}

// Result は解析結果。KindOKのときのみItemsが空でない。
// KindMalformedのときRawに元のテキストを保持する。
type Result struct {
	Kind  Kind
	Items []json.RawMessage
	Raw   string
}

// Items は生テキストをJSONとして解釈し、項目リストを取り出す。
//  1. そのままパースする。失敗した場合はコードフェンス等を取り除くため
//     最初の { / [ から最後の } / ] までを切り出して再試行する
//  2. トップレベルが配列ならそのまま使う
//  3. オブジェクトならWrapperKeysを順に探し、最初の空でない配列を使う
//
// 同じ入力に対しては常に同じ結果を返す。
func Items(raw string) Result {
	value, ok := JSON(raw)
	if !ok {
		return Result{Kind: KindMalformed, Raw: raw}
	}

	items := pickItems(value)
	if len(items) == 0 {
		return Result{Kind: KindEmpty}
	}
	return Result{Kind: KindOK, Items: items}
}

// JSON は生テキストからJSONの配列またはオブジェクトを取り出す。
// 直接パースできない場合は前後の説明文やコードフェンスを除いて再試行する。
func JSON(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	if value, ok := decode(trimmed); ok {
		return value, true
	}

	// 説明文中の "[1]" などに引きずられないよう、両方の候補を試して長い方を採る
	var best json.RawMessage
	for _, candidate := range extractJSON(trimmed) {
		if value, ok := decode(candidate); ok && len(value) > len(best) {
			best = value
		}
	}
	return best, best != nil
}

// CalendarItems は生テキストからカレンダー項目を取り出す。
// オブジェクトでない要素は読み飛ばし、欠けたフィールドはゼロ値のままにする。
// dayが欠けている、または解釈できない場合は配列内の位置（1始まり）で補う。
func CalendarItems(raw string) ([]model.CalendarItem, Result) {
	res := Items(raw)
	if res.Kind != KindOK {
		return nil, res
	}

	items := make([]model.CalendarItem, 0, len(res.Items))
	for i, msg := range res.Items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil {
			continue
		}

		item := model.CalendarItem{
			Day:     parseDay(fields["day"]),
			Title:   stringField(fields["title"]),
			Content: stringField(fields["content"]),
			Label:   stringField(fields["label"]),
		}
		if item.Day <= 0 {
			item.Day = i + 1
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, Result{Kind: KindEmpty}
	}
	return items, res
}

// decode はJSONとしてパースし、配列またはオブジェクトなら要素を生のまま保持して返す。
func decode(s string) (json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(s))

	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// 後続に余計なトークンがある場合は不正とみなす
	if dec.More() {
		return nil, false
	}
	switch v[0] {
	case '[', '{':
		return v, true
	default:
		return nil, false
	}
}

func pickItems(v json.RawMessage) []json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(v, &arr); err == nil {
		return arr
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	for _, key := range WrapperKeys {
		var wrapped []json.RawMessage
		if err := json.Unmarshal(obj[key], &wrapped); err == nil && len(wrapped) > 0 {
			return wrapped
		}
	}
	return nil
}

// extractJSON は最初の { から最後の } まで、最初の [ から最後の ] までをそれぞれ切り出す。
// 開始位置が早い方を先に返す。
func extractJSON(s string) []string {
	obj, objStart := span(s, "{", "}")
	arr, arrStart := span(s, "[", "]")

	var out []string
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		out = append(out, arr)
		if objStart != -1 {
			out = append(out, obj)
		}
		return out
	}
	if objStart != -1 {
		out = append(out, obj)
	}
	if arrStart != -1 {
		out = append(out, arr)
	}
	return out
}

// span はopenerの最初の出現からcloserの最後の出現までを返す。見つからなければ開始位置は-1。
func span(s, opener, closer string) (string, int) {
	start := strings.Index(s, opener)
	if start == -1 {
		return "", -1
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", -1
	}
	return s[start : end+1], start
}

func parseDay(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// 文字列以外（数値や配列）はJSON表現のまま文字列化する
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
