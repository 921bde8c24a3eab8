package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// チャネル名。NOTIFICATION_METHOD と Notify の channel 引数で使う。
const (
	ChannelAll      = "all"
	ChannelConsole  = "console"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// DefaultCooldown は同一キーワードの通知間隔の既定値。
const DefaultCooldown = time.Hour

// ErrChannelNotConfigured は送信先の認証情報やURLが未設定であることを表す。
var ErrChannelNotConfigured = errors.New("notification channel is not configured")

// Notifier は1つの通知チャネルへの送信インターフェース。
type Notifier interface {
	// Name はチャネル名を返す。
	Name() string
	// Send はメッセージを送信する。
	Send(ctx context.Context, message string) error
}

// GateMetrics は通知結果のメトリクス記録インターフェース。
type GateMetrics interface {
	RecordAlertSent(channel string)
	RecordAlertSuppressed(keyword string)
}

// Gate はキーワード単位のクールダウンを管理し、通知を各チャネルへ振り分ける。
// クールダウン状態はプロセス内のみで保持し、再起動で失われる。
type Gate struct {
	method    string
	cooldown  time.Duration
	notifiers []Notifier
	metrics   GateMetrics
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastSentAt map[string]time.Time
}

// NewGate はGateの新しいインスタンスを生成する。
// method は設定上の通知方式（console / telegram / webhook / all）。
// cooldown が0以下の場合は DefaultCooldown を使用する。metrics は nil でもよい。
func NewGate(method string, cooldown time.Duration, notifiers []Notifier, metrics GateMetrics, logger *slog.Logger) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if method == "" {
		method = ChannelConsole
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		method:     method,
		cooldown:   cooldown,
		notifiers:  notifiers,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		lastSentAt: make(map[string]time.Time),
	}
}

// Notify はクールダウンを確認したうえでメッセージを送信する。
//
// 前回送信からクールダウン未満の場合は何も送らず false を返す。
// そうでなければ送信前に送信時刻を記録し、選択されたチャネルへ送信する。
// いずれか1つのチャネルで成功すれば true を返す。
func (g *Gate) Notify(ctx context.Context, message, keyword, channel string) bool {
	if !g.reserve(keyword) {
		g.logger.Info("クールダウン中のため通知をスキップしました",
			slog.String("keyword", keyword),
			slog.Duration("cooldown", g.cooldown),
		)
		if g.metrics != nil {
			g.metrics.RecordAlertSuppressed(keyword)
		}
		return false
	}

	success := false
	for _, n := range g.notifiers {
		if !g.selected(n.Name(), channel) {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			g.logger.Warn("通知の送信に失敗しました",
				slog.String("channel", n.Name()),
				slog.String("keyword", keyword),
				slog.String("error", err.Error()),
			)
			continue
		}
		success = true
		if g.metrics != nil {
			g.metrics.RecordAlertSent(n.Name())
		}
	}
	return success
}

// reserve はクールダウンを判定し、送信可能であれば現在時刻を記録する。
func (g *Gate) reserve(keyword string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastSentAt[keyword]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastSentAt[keyword] = now
	return true
}

// LastSentAt はキーワードの最終送信時刻を返す。
func (g *Gate) LastSentAt(keyword string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastSentAt[keyword]
	return t, ok
}

func (g *Gate) selected(name, channel string) bool {
	return channel == ChannelAll || channel == name || g.method == ChannelAll || g.method == name
}
