package twitter

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tweetsense/internal/model"
)

// PostFetcher は上流から投稿を取得するインターフェース。
// テスト時にモックに差し替え可能。
type PostFetcher interface {
	LastTweets(ctx context.Context, userName, sinceID string, limit int) ([]model.Post, error)
}

// FetchMetrics は取得結果のメトリクス記録インターフェース。
type FetchMetrics interface {
	RecordPostsFetched(account string, count int)
	RecordFetchFailure(account string)
}

// MonitorConfig は Monitor の設定パラメータ。
type MonitorConfig struct {
	// Keywords は絞り込みキーワード。空の場合は絞り込まない。
	Keywords []string
	// Limit は1アカウントあたりの最大取得件数（デフォルト: 20）。
	Limit int
	// BatchSize は1バッチあたりのアカウント数（デフォルト: 5）。
	BatchSize int
	// BatchPause はバッチ間の待機時間（デフォルト: 2秒）。
	BatchPause time.Duration
}

// DefaultMonitorConfig はデフォルトの設定を返す。
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Keywords:   []string{"BTC", "ETH", "SOL"},
		Limit:      20,
		BatchSize:  5,
		BatchPause: 2 * time.Second,
	}
}

// Monitor は監視対象アカウントの投稿を取得する。
// アカウントごとのカーソル（最後に見た投稿ID）をインスタンス内に保持する。
// カーソルはプロセス内のみで保持し、再起動で失われる。
type Monitor struct {
	client  PostFetcher
	config  MonitorConfig
	metrics FetchMetrics
	logger  *slog.Logger

	mu      sync.Mutex
	cursors map[string]string
}

// NewMonitor はMonitorの新しいインスタンスを生成する。
// 0以下の設定値はデフォルト値で補完する。metrics は nil でもよい。
func NewMonitor(client PostFetcher, config MonitorConfig, metrics FetchMetrics, logger *slog.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.BatchPause < 0 {
		config.BatchPause = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client:  client,
		config:  config,
		metrics: metrics,
		logger:  logger,
		cursors: make(map[string]string),
	}
}

// Fetch は1アカウント分の投稿を取得し、キーワードで絞り込んで返す。
// 失敗しても呼び出し元にエラーを返さず、FetchResult.Err に原因を保持する。
func (m *Monitor) Fetch(ctx context.Context, account string, keywords []string, since string, limit int) model.FetchResult {
	posts, err := m.client.LastTweets(ctx, account, since, limit)
	if err != nil {
		m.logger.Warn("投稿の取得に失敗しました",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		if m.metrics != nil {
			m.metrics.RecordFetchFailure(account)
		}
		return model.FetchResult{Account: account, Err: err}
	}

	filtered := FilterByKeywords(posts, keywords)
	if m.metrics != nil {
		m.metrics.RecordPostsFetched(account, len(filtered))
	}

	m.logger.Debug("投稿を絞り込みました",
		slog.String("account", account),
		slog.Int("fetched", len(posts)),
		slog.Int("matched", len(filtered)),
	)

	return model.FetchResult{Account: account, Posts: filtered}
}

// ProcessAccounts は全アカウントをバッチ単位で順に取得し、該当投稿をまとめて返す。
//
// バッチ内のアカウントは逐次取得し、バッチ間（初回の前は除く）に BatchPause だけ待機する。
// 1件以上返したアカウントはカーソルを先頭（最新）の投稿IDに進める。
// 0件または失敗のアカウントはカーソルを変更しない。
// コンテキストがキャンセルされた場合は、それまでに取得した投稿を返す。
func (m *Monitor) ProcessAccounts(ctx context.Context, accounts []string) []model.Post {
	var all []model.Post
	var failed int

	for i := 0; i < len(accounts); i += m.config.BatchSize {
		// バッチ間の待機（初回は待たない）
		if i > 0 && m.config.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return all
			case <-time.After(m.config.BatchPause):
			}
		}

		end := i + m.config.BatchSize
		if end > len(accounts) {
			end = len(accounts)
		}

		for _, account := range accounts[i:end] {
			if ctx.Err() != nil {
				return all
			}

			since, _ := m.Cursor(account)
			result := m.Fetch(ctx, account, m.config.Keywords, since, m.config.Limit)

			switch result.Status() {
			case model.FetchStatusFailed:
				failed++
			case model.FetchStatusOK:
				m.advanceCursor(account, result.Posts[0].ID)
				all = append(all, result.Posts...)
			}
		}
	}

	m.logger.Info("全アカウントの取得が完了しました",
		slog.Int("accounts", len(accounts)),
		slog.Int("failed", failed),
		slog.Int("posts", len(all)),
	)

	return all
}

// Cursor はアカウントの現在のカーソルを返す。未設定の場合は ok=false。
func (m *Monitor) Cursor(account string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.cursors[account]
	return id, ok
}

// advanceCursor はカーソルを id に進める。現在値より古いIDでは後退させない。
func (m *Monitor) advanceCursor(account, id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.cursors[account]; ok && !isNewerID(id, current) {
		return
	}
	m.cursors[account] = id
}

// isNewerID は投稿IDの新旧を判定する。
// 両方が数字のみの場合は数値として比較し、それ以外は比較不能として新しいとみなす。
func isNewerID(candidate, current string) bool {
	if !isDigits(candidate) || !isDigits(current) {
		return candidate != current
	}
	candidate = strings.TrimLeft(candidate, "0")
	current = strings.TrimLeft(current, "0")
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return candidate > current
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FilterByKeywords は本文に少なくとも1つのキーワードを含む投稿だけを返す。
// 大文字小文字を区別しない部分一致で判定する。keywords が空の場合は全件を返す。
func FilterByKeywords(posts []model.Post, keywords []string) []model.Post {
	if len(keywords) == 0 {
		return posts
	}

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	if len(lowered) == 0 {
		return posts
	}

	var out []model.Post
	for _, p := range posts {
		text := strings.ToLower(p.Text)
		for _, k := range lowered {
			if strings.Contains(text, k) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
