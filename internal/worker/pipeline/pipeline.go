// Package pipeline は取り込みサイクルとアラートサイクルの調整、およびその定期実行を提供する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tweetsense/internal/alert"
	"github.com/hitoshi/tweetsense/internal/model"
)

// AccountFetcher は監視アカウント群から投稿を取得するインターフェース。
type AccountFetcher interface {
	ProcessAccounts(ctx context.Context, accounts []string) []model.Post
}

// BatchClassifier は投稿群を入力順のまま分類するインターフェース。
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, posts []model.Post) []model.ClassifiedPost
}

// RecordStore は分類結果の保存と直近レコード取得のインターフェース。
type RecordStore interface {
	PutBatch(ctx context.Context, items []model.ClassifiedPost) model.BatchStats
	Latest(ctx context.Context, keyword string, count int) []model.SentimentRecord
}

// AlertNotifier はクールダウン付きの通知インターフェース。
type AlertNotifier interface {
	Notify(ctx context.Context, message, keyword, channel string) bool
}

// Metrics はサイクル結果のメトリクス記録インターフェース。
type Metrics interface {
	RecordIngestionCycle(outcome string, duration time.Duration)
	RecordAlertEvaluation(keyword string, triggered bool)
}

// Outcome は取り込みサイクル1回の結果。
type Outcome string

const (
	// OutcomeSkipped は前回のサイクルが実行中のため何もしなかったことを表す。
	OutcomeSkipped Outcome = "skipped"
	// OutcomeEmpty は新しい投稿がなく分類・保存を行わなかったことを表す。
	OutcomeEmpty Outcome = "empty"
	// OutcomeCompleted は取得・分類・保存まで完了したことを表す。
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed はサイクル内で予期しない失敗が発生したことを表す。
	OutcomeFailed Outcome = "failed"
)

// CycleResult は取り込みサイクル1回の結果と保存集計。
type CycleResult struct {
	Outcome Outcome
	Fetched int
	Stats   model.BatchStats
	Err     error
}

// Config はパイプラインの設定パラメータ。
type Config struct {
	// Accounts は監視対象アカウントのハンドル一覧。
	Accounts []string
	// Keywords はアラート評価の対象キーワード。
	Keywords []string
	// Threshold はアラート発火に必要なポジティブ件数。
	Threshold int
	// SampleSize はアラート評価で参照する直近レコード数。
	SampleSize int
	// Channel は通知時に要求するチャネル。
	Channel string
}

// DefaultConfig はデフォルトのパイプライン設定を返す。
func DefaultConfig() Config {
	return Config{
		Keywords:   []string{"BTC", "ETH", "SOL"},
		Threshold:  7,
		SampleSize: 10,
		Channel:    alert.ChannelConsole,
	}
}

// Pipeline は取り込みサイクル（取得→分類→保存）とアラートサイクル（取得→評価→通知）を調整する。
// 取り込みサイクルは同時に1つしか実行されない。
type Pipeline struct {
	fetcher    AccountFetcher
	classifier BatchClassifier
	store      RecordStore
	notifier   AlertNotifier
	metrics    Metrics
	config     Config
	logger     *slog.Logger

	ingestMu sync.Mutex
}

// New はPipelineの新しいインスタンスを生成する。metrics は nil でもよい。
func New(fetcher AccountFetcher, classifier BatchClassifier, store RecordStore, notifier AlertNotifier, metrics Metrics, config Config, logger *slog.Logger) *Pipeline {
	defaults := DefaultConfig()
	if len(config.Keywords) == 0 {
		config.Keywords = defaults.Keywords
	}
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.SampleSize <= 0 {
		config.SampleSize = defaults.SampleSize
	}
	if config.Channel == "" {
		config.Channel = defaults.Channel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:    fetcher,
		classifier: classifier,
		store:      store,
		notifier:   notifier,
		metrics:    metrics,
		config:     config,
		logger:     logger,
	}
}

// RunIngestion は取り込みサイクルを1回実行する。
//
// 前回のサイクルが実行中であればロックを待たずに OutcomeSkipped を返す。
// サイクル内の panic は回復してログに記録し、OutcomeFailed を返す。
// どの経路で終了してもロックは解放される。
func (p *Pipeline) RunIngestion(ctx context.Context) (result CycleResult) {
	if !p.ingestMu.TryLock() {
		p.logger.Info("前回の取り込みサイクルが実行中のためスキップします")
		p.recordCycle(OutcomeSkipped, 0)
		return CycleResult{Outcome: OutcomeSkipped}
	}
	defer p.ingestMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("取り込みサイクルで panic が発生しました: %v", r)
			p.logger.Error("取り込みサイクルが失敗しました", slog.String("error", err.Error()))
			result = CycleResult{Outcome: OutcomeFailed, Fetched: result.Fetched, Err: err}
		}
		p.recordCycle(result.Outcome, time.Since(start))
	}()

	p.logger.Info("取り込みサイクルを開始します", slog.Int("account_count", len(p.config.Accounts)))

	posts := p.fetcher.ProcessAccounts(ctx, p.config.Accounts)
	result.Fetched = len(posts)
	if len(posts) == 0 {
		p.logger.Info("新しい投稿はありません")
		result.Outcome = OutcomeEmpty
		return result
	}

	classified := p.classifier.ClassifyBatch(ctx, posts)
	result.Stats = p.store.PutBatch(ctx, classified)
	result.Outcome = OutcomeCompleted

	p.logger.Info("取り込みサイクルが完了しました",
		slog.Int("fetched", len(posts)),
		slog.Int("new", result.Stats.New),
		slog.Int("existing", result.Stats.Existing),
		slog.Int("error", result.Stats.Error),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}

// RunAlerts はアラートサイクルを1回実行し、評価したキーワードの結果を返す。
// レコードが取得できなかったキーワードは評価せずに次へ進む。
func (p *Pipeline) RunAlerts(ctx context.Context) []alert.Evaluation {
	p.logger.Info("センチメント閾値を確認します", slog.Int("keyword_count", len(p.config.Keywords)))

	var evaluations []alert.Evaluation
	for _, keyword := range p.config.Keywords {
		eval, ok := p.checkKeyword(ctx, keyword)
		if ok {
			evaluations = append(evaluations, eval)
		}
	}
	return evaluations
}

// checkKeyword はキーワード1件を評価し、閾値を超えていれば通知する。
// panic はこのキーワードに限って回復する。
func (p *Pipeline) checkKeyword(ctx context.Context, keyword string) (eval alert.Evaluation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("アラート評価で panic が発生しました",
				slog.String("keyword", keyword),
				slog.String("error", fmt.Sprint(r)),
			)
			ok = false
		}
	}()

	records := p.store.Latest(ctx, keyword, p.config.SampleSize)
	if len(records) == 0 {
		p.logger.Debug("評価対象のレコードがありません", slog.String("keyword", keyword))
		return alert.Evaluation{}, false
	}

	eval = alert.Evaluate(keyword, records, p.config.Threshold)
	if p.metrics != nil {
		p.metrics.RecordAlertEvaluation(keyword, eval.Triggered)
	}

	p.logger.Debug("アラート評価結果",
		slog.String("keyword", keyword),
		slog.Bool("triggered", eval.Triggered),
		slog.Int("positive", eval.PositiveCount),
		slog.Int("total", eval.TotalCount),
		slog.String("reason", eval.Reason),
	)

	if eval.Triggered {
		sent := p.notifier.Notify(ctx, alert.FormatAlert(eval), keyword, p.config.Channel)
		p.logger.Info("ポジティブ感情アラートを検出しました",
			slog.String("keyword", keyword),
			slog.Float64("percentage", eval.Percentage),
			slog.Bool("sent", sent),
		)
	}
	return eval, true
}

func (p *Pipeline) recordCycle(outcome Outcome, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordIngestionCycle(string(outcome), d)
	}
}
