// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/tweetsense/internal/model"
)

const namespace = "tweetsense"

// Collector はパイプライン各段のPrometheusメトリクスを収集する。
// twitter.FetchMetrics, sentiment.ClassifierMetrics, record.StoreMetrics などを満たす。
type Collector struct {
	ingestionCycles     *prometheus.CounterVec
	ingestionDuration   prometheus.Histogram
	postsFetched        prometheus.Counter
	fetchFailures       *prometheus.CounterVec
	classifications     *prometheus.CounterVec
	classifierFallbacks *prometheus.CounterVec
	storeWrites         *prometheus.CounterVec
	alertEvaluations    *prometheus.CounterVec
	alertsSent          *prometheus.CounterVec
	alertsSuppressed    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestionCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_cycles_total",
			Help:      "取り込みサイクルの結果別の実行数",
		}, []string{"outcome"}),
		ingestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_cycle_duration_seconds",
			Help:      "取り込みサイクルの所要時間（秒）",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		postsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_fetched_total",
			Help:      "キーワードフィルタ後に取得した投稿の合計数",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "アカウント別の取得失敗数",
		}, []string{"account"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "ラベル別の分類数",
		}, []string{"sentiment"}),
		classifierFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_fallbacks_total",
			Help:      "理由別の neutral フォールバック数",
		}, []string{"reason"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "結果別のレコード書き込み数",
		}, []string{"outcome"}),
		alertEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_evaluations_total",
			Help:      "キーワード別のアラート評価数",
		}, []string{"keyword", "triggered"}),
		alertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "チャネル別のアラート送信成功数",
		}, []string{"channel"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "クールダウンにより抑制されたアラート数",
		}, []string{"keyword"}),
	}

	reg.MustRegister(
		c.ingestionCycles,
		c.ingestionDuration,
		c.postsFetched,
		c.fetchFailures,
		c.classifications,
		c.classifierFallbacks,
		c.storeWrites,
		c.alertEvaluations,
		c.alertsSent,
		c.alertsSuppressed,
	)

	return c
}

// RecordIngestionCycle は取り込みサイクルの結果と所要時間を記録する。
func (c *Collector) RecordIngestionCycle(outcome string, duration time.Duration) {
	c.ingestionCycles.WithLabelValues(outcome).Inc()
	c.ingestionDuration.Observe(duration.Seconds())
}

// RecordPostsFetched は取得した投稿数を記録する。
func (c *Collector) RecordPostsFetched(account string, count int) {
	c.postsFetched.Add(float64(count))
}

// RecordFetchFailure はアカウントの取得失敗を記録する。
func (c *Collector) RecordFetchFailure(account string) {
	c.fetchFailures.WithLabelValues(account).Inc()
}

// RecordClassification は分類結果を記録する。
func (c *Collector) RecordClassification(sentiment model.Sentiment) {
	c.classifications.WithLabelValues(string(sentiment)).Inc()
}

// RecordClassificationFallback は neutral へのフォールバックを記録する。
func (c *Collector) RecordClassificationFallback(reason string) {
	c.classifierFallbacks.WithLabelValues(reason).Inc()
}

// RecordStoreOutcome はレコード書き込み結果を記録する。
func (c *Collector) RecordStoreOutcome(outcome model.PutOutcome) {
	c.storeWrites.WithLabelValues(string(outcome)).Inc()
}

// RecordAlertEvaluation はアラート評価結果を記録する。
func (c *Collector) RecordAlertEvaluation(keyword string, triggered bool) {
	c.alertEvaluations.WithLabelValues(keyword, strconv.FormatBool(triggered)).Inc()
}

// RecordAlertSent はチャネルへの送信成功を記録する。
func (c *Collector) RecordAlertSent(channel string) {
	c.alertsSent.WithLabelValues(channel).Inc()
}

// RecordAlertSuppressed はクールダウンによる抑制を記録する。
func (c *Collector) RecordAlertSuppressed(keyword string) {
	c.alertsSuppressed.WithLabelValues(keyword).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
