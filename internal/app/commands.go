package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/tweetsense/internal/alert"
	"github.com/hitoshi/tweetsense/internal/config"
	"github.com/hitoshi/tweetsense/internal/database"
	"github.com/hitoshi/tweetsense/internal/model"
	"github.com/hitoshi/tweetsense/internal/repository"
)

// testAccounts は test-twitter で --param 未指定時に取得するアカウント。
var testAccounts = []string{"elonmusk", "VitalikButerin"}

// sampleTexts は test-sentiment で引数未指定時に分類するテキスト。
var sampleTexts = []string{
	"Bitcoin just hit $50,000! This is amazing news for crypto enthusiasts.",
	"Ethereum network congestion is causing high gas fees again. Not happy about this.",
	"Just another day in crypto. BTC moving sideways.",
}

// defaultTestMessage は test-notify で --param 未指定時に送るメッセージ。
const defaultTestMessage = "This is a test notification from the tweetsense sentiment monitor."

// runMigrate はストアのスキーマを作成・更新する。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、OpenSearchではインデックスを作成する。
func runMigrate(ctx context.Context, w io.Writer, opts Options) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cfg.StoreBackend == config.StoreBackendOpenSearch {
		client, err := repository.NewOpenSearchClient(cfg.OpenSearchURL, cfg.OpenSearchUsername, cfg.OpenSearchPassword)
		if err != nil {
			return fmt.Errorf("failed to create opensearch client: %w", err)
		}
		if err := repository.NewOpenSearchRecordRepo(client, cfg.OpenSearchIndex).EnsureIndex(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("opensearch index is ready", slog.String("index", cfg.OpenSearchIndex))
		return nil
	}

	logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck は起動中サーバーの /health にリクエストを送り、結果を返す。
// distroless環境でのDockerヘルスチェック用のため、設定全体の読み込みは行わない。
func runHealthcheck(ctx context.Context, opts Options) error {
	if err := applyEnv(opts); err != nil {
		return err
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// runTestTwitter はキーワードフィルタ付きの取得を1回実行し、先頭5件を表示する。
func runTestTwitter(ctx context.Context, w io.Writer, opts Options) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	handles := testAccounts
	if opts.Param != "" {
		handles = []string{opts.Param}
	}

	posts := newMonitor(cfg, nil, logger).ProcessAccounts(ctx, handles)
	fmt.Fprintf(w, "Found %d tweets\n", len(posts))
	for i, p := range posts {
		if i >= 5 {
			break
		}
		fmt.Fprintf(w, "%s: %s\n", p.Source(), truncate(p.Text, 80))
	}
	return nil
}

// runTestSentiment はテキストを分類して結果を表示する。
func runTestSentiment(ctx context.Context, w io.Writer, opts Options, args []string) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	texts := args
	if len(texts) == 0 && opts.Param != "" {
		texts = []string{opts.Param}
	}
	if len(texts) == 0 {
		texts = sampleTexts
	}

	classifier := newClassifier(cfg, nil, logger)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, text := range texts {
		fmt.Fprintf(tw, "%s\t%s\n", classifier.Classify(ctx, text), text)
	}
	return tw.Flush()
}

// runTestStore はキーワードごとの直近24時間のトレンドを表示する。
func runTestStore(ctx context.Context, w io.Writer, opts Options) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	store, closeStore, err := newStore(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tTOTAL\tPOSITIVE\tNEGATIVE\tNEUTRAL")
	for _, keyword := range cfg.TargetKeywords {
		trend := store.Trend(ctx, keyword, 24)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", keyword, trend.Total,
			trend.Counts[model.SentimentPositive],
			trend.Counts[model.SentimentNegative],
			trend.Counts[model.SentimentNeutral],
		)
	}
	return tw.Flush()
}

// runTestNotify は全チャネルにテスト通知を送信する。
func runTestNotify(ctx context.Context, w io.Writer, opts Options) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	gate, err := newGate(cfg, w, nil, logger)
	if err != nil {
		return err
	}

	message := defaultTestMessage
	if opts.Param != "" {
		message = opts.Param
	}
	sent := gate.Notify(ctx, message, "TEST", alert.ChannelAll)
	fmt.Fprintf(w, "Notification sent: %t\n", sent)
	if !sent {
		return fmt.Errorf("test notification was not delivered")
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
