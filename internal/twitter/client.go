// Package twitter は監視対象アカウントの投稿取得（twitterapi.io）を提供する。
// 上流APIクライアントと、カーソル管理・キーワード絞り込み・バッチ取得を行う Monitor を含む。
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tweetsense/internal/model"
)

const (
	// DefaultBaseURL は twitterapi.io のベースURL。
	DefaultBaseURL = "https://api.twitterapi.io"
	// lastTweetsPath はユーザーの最新投稿取得エンドポイントのパス。
	lastTweetsPath = "/twitter/user/last_tweets"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 5 << 20
)

// Client は twitterapi.io のクライアント。
// maxRPS が正の場合、リクエストごとにトークンバケットで送信間隔を制御する。
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string // テスト用に差し替え可能
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURL が空の場合は DefaultBaseURL を使用する。maxRPS が0以下の場合は送信間隔を制御しない。
func NewClient(httpClient *http.Client, apiKey, baseURL string, maxRPS float64, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if maxRPS > 0 {
		limit = rate.Limit(maxRPS)
	}

	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// lastTweetsResponse は last_tweets エンドポイントのレスポンス。
type lastTweetsResponse struct {
	Status  string `json:"status"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
	Data    struct {
		Tweets []model.Post `json:"tweets"`
	} `json:"data"`
}

// LastTweets は指定アカウントの最新投稿を新しい順に取得する。
// sinceID が空でない場合は上流に since_id として渡す。絞り込みは上流に委ねる。
// 通信エラー・非2xx・不正なJSON・status != "success" はいずれもエラーを返す。
func (c *Client) LastTweets(ctx context.Context, userName, sinceID string, limit int) ([]model.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("送信間隔の待機が中断されました: %w", err)
	}

	reqURL, err := url.Parse(c.baseURL + lastTweetsPath)
	if err != nil {
		return nil, fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("userName", userName)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの実行に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twitterapi.io がステータス %d を返しました: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result lastTweetsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.Status != "success" {
		msg := result.Msg
		if msg == "" {
			msg = result.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("twitterapi.io がエラーを返しました: %s", msg)
	}

	c.logger.Debug("投稿を取得しました",
		slog.String("account", userName),
		slog.String("since_id", sinceID),
		slog.Int("count", len(result.Data.Tweets)),
	)

	return result.Data.Tweets, nil
}

// truncate は先頭 n 文字（rune単位）に切り詰める。
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
