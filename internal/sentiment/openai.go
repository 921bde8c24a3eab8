// Package sentiment は投稿本文の感情分類と埋め込みベクトル生成を提供する。
package sentiment

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// defaultRequestTimeout はOpenAI APIリクエスト1件あたりのタイムアウト。
const defaultRequestTimeout = 30 * time.Second

// NewOpenAIClient はタイムアウト付きHTTPクライアントを設定したOpenAIクライアントを生成する。
// baseURL が空の場合は公式エンドポイントを使用する。
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(config)
}
