package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodySize はエラーレスポンスから読み取る最大バイト数。
const maxErrorBodySize = 64 * 1024

// postJSON はJSONボディでPOSTし、2xx以外のステータスはProviderErrorに変換する。
// 成功時はレスポンスを返し、Bodyのクローズは呼び出し元が行う。
func postJSON(ctx context.Context, httpClient *http.Client, provider, endpoint string, headers map[string]string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s の呼び出しに失敗しました: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    errorMessageFromBody(raw),
		}
	}

	return resp, nil
}

// errorMessageFromBody は {"error":{"message":"..."}} 形式のエラーメッセージを取り出す。
// 形式が異なる場合はボディをそのまま返す。
func errorMessageFromBody(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// readSSE はServer-Sent Eventsのdata行を順に読み取り、handleに渡す。
// handleがdone=trueを返すか、ストリームが終わるまで読み続ける。
func readSSE(r io.Reader, handle func(data []byte) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) == 0 {
			continue
		}

		done, err := handle(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ストリームの読み取りに失敗しました: %w", err)
	}
	return nil
}
