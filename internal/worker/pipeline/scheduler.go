package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tweetsense/internal/alert"
)

const (
	// DefaultMonitoringInterval は取り込みサイクルの既定間隔。
	DefaultMonitoringInterval = 5 * time.Minute
	// DefaultAlertCheckInterval はアラートサイクルの既定間隔。
	DefaultAlertCheckInterval = time.Minute
)

// Runner はスケジューラから呼び出される2つのサイクル。
type Runner interface {
	RunIngestion(ctx context.Context) CycleResult
	RunAlerts(ctx context.Context) []alert.Evaluation
}

// Scheduler は取り込みサイクルとアラートサイクルを独立した間隔で定期実行する。
type Scheduler struct {
	runner         Runner
	ingestInterval time.Duration
	alertInterval  time.Duration
	logger         *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// 間隔が0以下の場合は既定値を使用する。
func NewScheduler(runner Runner, ingestInterval, alertInterval time.Duration, logger *slog.Logger) *Scheduler {
	if ingestInterval <= 0 {
		ingestInterval = DefaultMonitoringInterval
	}
	if alertInterval <= 0 {
		alertInterval = DefaultAlertCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:         runner,
		ingestInterval: ingestInterval,
		alertInterval:  alertInterval,
		logger:         logger,
	}
}

// Start はコンテキストがキャンセルされるまで両サイクルを実行する。
// 取り込みサイクルはティックごとに別 goroutine で起動し、重なったティックは
// Runner 側の排他で破棄される。停止時は実行中のサイクルの終了を待つ。
func (s *Scheduler) Start(ctx context.Context) {
	ingestTicker := time.NewTicker(s.ingestInterval)
	defer ingestTicker.Stop()
	alertTicker := time.NewTicker(s.alertInterval)
	defer alertTicker.Stop()

	s.logger.Info("スケジューラを開始しました",
		slog.Duration("monitoring_interval", s.ingestInterval),
		slog.Duration("alert_check_interval", s.alertInterval),
	)

	var wg sync.WaitGroup
	runIngestion := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runner.RunIngestion(ctx)
		}()
	}

	// 起動直後に1回実行
	runIngestion()
	s.runner.RunAlerts(ctx)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info("スケジューラを停止しました")
			return
		case <-ingestTicker.C:
			runIngestion()
		case <-alertTicker.C:
			s.runner.RunAlerts(ctx)
		}
	}
}
