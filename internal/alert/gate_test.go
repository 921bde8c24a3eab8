package alert

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockNotifier はテスト用の通知チャネル。
type mockNotifier struct {
	name  string
	err   error
	calls atomic.Int32
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(context.Context, string) error {
	m.calls.Add(1)
	return m.err
}

type mockGateMetrics struct {
	mu         sync.Mutex
	sent       []string
	suppressed []string
}

func (m *mockGateMetrics) RecordAlertSent(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, channel)
}

func (m *mockGateMetrics) RecordAlertSuppressed(keyword string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed = append(m.suppressed, keyword)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeClock は手動で進める時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGate_Cooldown(t *testing.T) {
	console := &mockNotifier{name: ChannelConsole}
	metrics := &mockGateMetrics{}
	clock := &fakeClock{now: time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)}
	gate := NewGate(ChannelConsole, time.Hour, []Notifier{console}, metrics, newTestLogger(&bytes.Buffer{}))
	gate.now = clock.Now
	ctx := context.Background()

	if !gate.Notify(ctx, "msg", "BTC", ChannelConsole) {
		t.Fatal("1回目の通知は成功するべき")
	}

	clock.Advance(59 * time.Minute)
	if gate.Notify(ctx, "msg", "BTC", ChannelConsole) {
		t.Error("クールダウン中の通知は抑制されるべき")
	}
	if console.calls.Load() != 1 {
		t.Errorf("抑制時に送信されています: calls = %d", console.calls.Load())
	}

	if !gate.Notify(ctx, "msg", "ETH", ChannelConsole) {
		t.Error("別キーワードはクールダウンの影響を受けないべき")
	}

	clock.Advance(time.Minute)
	if !gate.Notify(ctx, "msg", "BTC", ChannelConsole) {
		t.Error("クールダウン経過後は通知できるべき")
	}

	if len(metrics.suppressed) != 1 || metrics.suppressed[0] != "BTC" {
		t.Errorf("suppressed = %v", metrics.suppressed)
	}
	if len(metrics.sent) != 3 {
		t.Errorf("sent = %v", metrics.sent)
	}
}

// TestGate_ReservesBeforeSend は送信失敗でもクールダウンが開始されることを検証する。
func TestGate_ReservesBeforeSend(t *testing.T) {
	failing := &mockNotifier{name: ChannelTelegram, err: errors.New("boom")}
	gate := NewGate(ChannelTelegram, time.Hour, []Notifier{failing}, nil, newTestLogger(&bytes.Buffer{}))

	if gate.Notify(context.Background(), "msg", "BTC", ChannelTelegram) {
		t.Error("全チャネル失敗時は false を返すべき")
	}
	if _, ok := gate.LastSentAt("BTC"); !ok {
		t.Error("送信前に時刻が記録されていません")
	}
	if gate.Notify(context.Background(), "msg", "BTC", ChannelTelegram) {
		t.Error("2回目はクールダウンで抑制されるべき")
	}
	if failing.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", failing.calls.Load())
	}
}

// TestGate_ConcurrentNotify は同時に通知しても1回しか送信されないことを検証する。
func TestGate_ConcurrentNotify(t *testing.T) {
	console := &mockNotifier{name: ChannelConsole}
	gate := NewGate(ChannelConsole, time.Hour, []Notifier{console}, nil, newTestLogger(&bytes.Buffer{}))

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Notify(context.Background(), "msg", "SOL", ChannelConsole) {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successes = %d, want 1", successes.Load())
	}
	if console.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", console.calls.Load())
	}
}

func TestGate_ChannelSelection(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		channel  string
		wantSent []string
	}{
		{"要求チャネルのみ", ChannelConsole, ChannelTelegram, []string{ChannelConsole, ChannelTelegram}},
		{"設定と要求が同じ", ChannelConsole, ChannelConsole, []string{ChannelConsole}},
		{"要求がall", ChannelConsole, ChannelAll, []string{ChannelConsole, ChannelTelegram, ChannelWebhook}},
		{"設定がall", ChannelAll, ChannelConsole, []string{ChannelConsole, ChannelTelegram, ChannelWebhook}},
		{"webhook設定", ChannelWebhook, ChannelWebhook, []string{ChannelWebhook}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifiers := []*mockNotifier{
				{name: ChannelConsole},
				{name: ChannelTelegram},
				{name: ChannelWebhook},
			}
			list := make([]Notifier, len(notifiers))
			for i, n := range notifiers {
				list[i] = n
			}
			gate := NewGate(tt.method, time.Hour, list, nil, newTestLogger(&bytes.Buffer{}))

			if !gate.Notify(context.Background(), "msg", "BTC", tt.channel) {
				t.Fatal("Notify returned false")
			}

			var sent []string
			for _, n := range notifiers {
				if n.calls.Load() > 0 {
					sent = append(sent, n.name)
				}
			}
			if len(sent) != len(tt.wantSent) {
				t.Fatalf("sent = %v, want %v", sent, tt.wantSent)
			}
			for i := range sent {
				if sent[i] != tt.wantSent[i] {
					t.Errorf("sent = %v, want %v", sent, tt.wantSent)
				}
			}
		})
	}
}

// TestGate_AnyChannelSuccess は1チャネルでも成功すれば true となることを検証する。
func TestGate_AnyChannelSuccess(t *testing.T) {
	gate := NewGate(ChannelAll, time.Hour, []Notifier{
		&mockNotifier{name: ChannelTelegram, err: ErrChannelNotConfigured},
		&mockNotifier{name: ChannelConsole},
	}, nil, newTestLogger(&bytes.Buffer{}))

	if !gate.Notify(context.Background(), "msg", "BTC", ChannelAll) {
		t.Error("console が成功しているので true を返すべき")
	}
}

func TestNewGate_Defaults(t *testing.T) {
	gate := NewGate("", 0, nil, nil, nil)
	if gate.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, want %v", gate.cooldown, DefaultCooldown)
	}
	if gate.method != ChannelConsole {
		t.Errorf("method = %q, want console", gate.method)
	}
}
