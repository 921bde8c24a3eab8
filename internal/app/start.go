package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/tweetsense/internal/accounts"
	"github.com/hitoshi/tweetsense/internal/handler"
	"github.com/hitoshi/tweetsense/internal/metrics"
	"github.com/hitoshi/tweetsense/internal/middleware"
	"github.com/hitoshi/tweetsense/internal/worker/pipeline"
)

// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの猶予。
const shutdownTimeout = 30 * time.Second

// runStart はスケジューラとHTTPサーバーを起動する。
// コンテキストがキャンセルされる（SIGINT/SIGTERM）とサーバーを停止し、
// 実行中のサイクルの終了を待ってから戻る。
func runStart(ctx context.Context, w io.Writer, opts Options) error {
	cfg, logger, err := Init(w, opts)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	logger.Info("starting application",
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("notification_method", cfg.NotificationMethod),
		slog.String("port", cfg.ServerPort),
	)

	// 1. 監視アカウントの読み込み
	handles, err := accounts.LoadFile(cfg.AccountsFile)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(handles) == 0 {
		return fmt.Errorf("no accounts found in %s", cfg.AccountsFile)
	}
	logger.Info("監視アカウントを読み込みました", slog.Int("count", len(handles)))

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. コンポーネントの初期化
	store, closeStore, err := newStore(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gate, err := newGate(cfg, w, collector, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(
		newMonitor(cfg, collector, logger),
		newClassifier(cfg, collector, logger),
		store, gate, collector,
		pipeline.Config{
			Accounts:   handles,
			Keywords:   cfg.TargetKeywords,
			Threshold:  cfg.SentimentThreshold,
			SampleSize: cfg.AlertSampleSize,
			Channel:    cfg.NotificationMethod,
		},
		logger,
	)
	scheduler := pipeline.NewScheduler(p, cfg.MonitoringInterval, cfg.AlertCheckInterval, logger)

	// 4. HTTPサーバーの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.APIRatePerMinute, cfg.SimilarRatePerMinute), logger)
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(&handler.RouterDeps{
			Store:       store,
			Health:      store,
			Metrics:     metrics.Handler(registry),
			Logger:      logger,
			RateLimiter: rateLimiter,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. 起動とシャットダウン
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("application stopped gracefully")
	return nil
}
