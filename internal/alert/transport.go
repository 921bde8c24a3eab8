package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	// defaultTelegramAPIBase はTelegram Bot APIのベースURL。
	defaultTelegramAPIBase = "https://api.telegram.org"
	// defaultSendTimeout は外部チャネルへの送信タイムアウト。
	defaultSendTimeout = 10 * time.Second
	// maxRetries は外部チャネル送信の最大リトライ回数。
	maxRetries = 3
)

// Sanitizer は送信前にメッセージを整形するインターフェース。
type Sanitizer interface {
	Sanitize(message string) string
}

// ConsoleNotifier は標準出力などの io.Writer に通知を書き出す。常に成功する。
type ConsoleNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewConsoleNotifier はConsoleNotifierの新しいインスタンスを生成する。
func NewConsoleNotifier(w io.Writer, logger *slog.Logger) *ConsoleNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleNotifier{w: w, logger: logger}
}

// Name はチャネル名を返す。
func (n *ConsoleNotifier) Name() string { return ChannelConsole }

// Send はメッセージを書き出す。書き込みエラーはログに残すが失敗とはしない。
func (n *ConsoleNotifier) Send(_ context.Context, message string) error {
	n.logger.Info("NOTIFICATION", slog.String("message", message))
	if n.w == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.w, "NOTIFICATION: %s\n", message); err != nil {
		n.logger.Warn("コンソールへの通知出力に失敗しました", slog.String("error", err.Error()))
	}
	return nil
}

// TelegramNotifier はTelegram Bot APIの sendMessage で通知する。
type TelegramNotifier struct {
	token     string
	chatID    string
	apiBase   string
	client    *http.Client
	sanitizer Sanitizer
	executor  failsafe.Executor[*http.Response]
}

// NewTelegramNotifier はTelegramNotifierの新しいインスタンスを生成する。
// token または chatID が空の場合、Send は ErrChannelNotConfigured を返す。
// client が nil の場合はタイムアウト付きの既定クライアントを使用する。
func NewTelegramNotifier(token, chatID string, client *http.Client, sanitizer Sanitizer) *TelegramNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &TelegramNotifier{
		token:     token,
		chatID:    chatID,
		apiBase:   defaultTelegramAPIBase,
		client:    client,
		sanitizer: sanitizer,
		executor:  newHTTPExecutor(maxRetries, 500*time.Millisecond, 5*time.Second),
	}
}

// Name はチャネル名を返す。
func (n *TelegramNotifier) Name() string { return ChannelTelegram }

// Send はHTMLパースモードでメッセージを送信する。
func (n *TelegramNotifier) Send(ctx context.Context, message string) error {
	if n.token == "" || n.chatID == "" {
		return ErrChannelNotConfigured
	}
	if n.sanitizer != nil {
		message = n.sanitizer.Sanitize(message)
	}

	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	return postJSON(ctx, n.client, n.executor, url, payload)
}

// WebhookNotifier はDiscord互換のWebhookにJSONで通知する。
type WebhookNotifier struct {
	url      string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
// url が空の場合、Send は ErrChannelNotConfigured を返す。
// URLの安全性検証は呼び出し側で行い、client にはSSRF防止付きのクライアントを渡す。
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &WebhookNotifier{
		url:      url,
		client:   client,
		executor: newHTTPExecutor(maxRetries, 500*time.Millisecond, 5*time.Second),
	}
}

// Name はチャネル名を返す。
func (n *WebhookNotifier) Name() string { return ChannelWebhook }

// Send は {"content": message} を送信する。
func (n *WebhookNotifier) Send(ctx context.Context, message string) error {
	if n.url == "" {
		return ErrChannelNotConfigured
	}
	return postJSON(ctx, n.client, n.executor, n.url, map[string]string{"content": message})
}

// newHTTPExecutor はネットワークエラー、429、5xxをリトライする実行器を生成する。
func newHTTPExecutor(retries int, baseDelay, maxDelay time.Duration) failsafe.Executor[*http.Response] {
	policy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(shouldRetry).
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(retries).
		WithJitterFactor(0.1).
		Build()
	return failsafe.With(policy)
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
}

// postJSON は payload をJSONでPOSTし、2xx以外をエラーとして返す。
func postJSON(ctx context.Context, client *http.Client, executor failsafe.Executor[*http.Response], url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("通知ペイロードのエンコードに失敗しました: %w", err)
	}

	resp, err := executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		// 判定にはステータスコードのみ使うため、ここで本文を読み捨てて閉じる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("通知の送信に失敗しました: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("通知先が異常なステータスを返しました: %d", resp.StatusCode)
	}
	return nil
}
