package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tweetsense/internal/alert"
	"github.com/hitoshi/tweetsense/internal/config"
	"github.com/hitoshi/tweetsense/internal/database"
	"github.com/hitoshi/tweetsense/internal/metrics"
	"github.com/hitoshi/tweetsense/internal/record"
	"github.com/hitoshi/tweetsense/internal/repository"
	"github.com/hitoshi/tweetsense/internal/security"
	"github.com/hitoshi/tweetsense/internal/sentiment"
	"github.com/hitoshi/tweetsense/internal/twitter"
)

const (
	// storePingTimeout は起動時のストア疎通確認のタイムアウト。
	storePingTimeout = 5 * time.Second
	// openAITimeout はOpenAI呼び出し1回あたりのタイムアウト。
	openAITimeout = 30 * time.Second
	// notifyTimeout は外部通知チャネルへの送信タイムアウト。
	notifyTimeout = 10 * time.Second
)

// newRecordRepository は STORE_BACKEND に応じたリポジトリを生成する。
// 戻り値の closer はプロセス終了時に呼び出す。
func newRecordRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.RecordRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendOpenSearch:
		client, err := repository.NewOpenSearchClient(cfg.OpenSearchURL, cfg.OpenSearchUsername, cfg.OpenSearchPassword)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create opensearch client: %w", err)
		}
		repo := repository.NewOpenSearchRecordRepo(client, cfg.OpenSearchIndex)
		if err := repo.EnsureIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure opensearch index: %w", err)
		}
		logger.Info("OpenSearchに接続しました", slog.String("index", cfg.OpenSearchIndex))
		return repo, func() {}, nil

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, storePingTimeout); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("データベースに接続しました")
		return repository.NewPostgresRecordRepo(db), func() { db.Close() }, nil
	}
}

// newStore は重複排除ストアを生成する。
// 埋め込みは EMBEDDINGS_ENABLED かつベクトル検索対応のバックエンドでのみ有効になる。
func newStore(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) (*record.Store, func(), error) {
	repo, closer, err := newRecordRepository(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var embedder record.Embedder
	if _, ok := repo.(repository.VectorIndex); ok && cfg.EmbeddingsEnabled {
		client := sentiment.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, openAITimeout)
		embedder = sentiment.NewEmbedder(client, cfg.EmbeddingModel)
	}

	var storeMetrics record.StoreMetrics
	if collector != nil {
		storeMetrics = collector
	}
	return record.NewStore(repo, embedder, storeMetrics, logger), closer, nil
}

// newMonitor は投稿取得のモニターを生成する。
func newMonitor(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) *twitter.Monitor {
	client := twitter.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		cfg.TwitterAPIKey, cfg.TwitterAPIBaseURL, cfg.TwitterMaxRPS, logger,
	)

	var fetchMetrics twitter.FetchMetrics
	if collector != nil {
		fetchMetrics = collector
	}
	return twitter.NewMonitor(client, twitter.MonitorConfig{
		Keywords:   cfg.TargetKeywords,
		Limit:      cfg.FetchLimit,
		BatchSize:  cfg.FetchBatchSize,
		BatchPause: cfg.FetchBatchPause,
	}, fetchMetrics, logger)
}

// newClassifier はセンチメント分類器を生成する。
func newClassifier(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) *sentiment.Classifier {
	client := sentiment.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, openAITimeout)

	var classifierMetrics sentiment.ClassifierMetrics
	if collector != nil {
		classifierMetrics = collector
	}
	return sentiment.NewClassifier(client, cfg.OpenAIModel, classifierMetrics, logger)
}

// newGate は通知チャネル群とクールダウンを持つアラートゲートを生成する。
// Webhook URL が設定されている場合は起動時に安全性を検証する。
func newGate(cfg *config.Config, out io.Writer, collector *metrics.Collector, logger *slog.Logger) (*alert.Gate, error) {
	guard := security.NewWebhookGuard()
	if cfg.AlertWebhookURL != "" {
		if err := guard.ValidateURL(cfg.AlertWebhookURL); err != nil {
			return nil, fmt.Errorf("invalid ALERT_WEBHOOK_URL: %w", err)
		}
	}

	notifiers := []alert.Notifier{
		alert.NewConsoleNotifier(out, logger),
		alert.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID,
			&http.Client{Timeout: notifyTimeout}, security.NewMessageSanitizer()),
		alert.NewWebhookNotifier(cfg.AlertWebhookURL, guard.NewSafeClient(notifyTimeout)),
	}

	var gateMetrics alert.GateMetrics
	if collector != nil {
		gateMetrics = collector
	}
	return alert.NewGate(cfg.NotificationMethod, cfg.AlertCooldown, notifiers, gateMetrics, logger), nil
}
