// Package handler はHTTP APIのルーティングとハンドラーを提供する。
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tweetsense/internal/middleware"
)

// requestTimeout はAPIリクエスト1件あたりのタイムアウト。
const requestTimeout = 30 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Store   SentimentQuerier
	Health  Pinger
	Metrics http.Handler
	Logger  *slog.Logger

	// RateLimiter は /api/sentiments 配下に適用するクライアント単位のレート制限。
	// nil の場合は制限しない。
	RateLimiter *middleware.RateLimiter
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery
//
// /api/sentiments 配下では RateLimit(General) → Timeout を追加し、
// 埋め込みAPIを呼び出す /similar にはさらに RateLimit(Similar) を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.Health, logger))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	sentimentHandler := NewSentimentHandler(deps.Store)
	r.Route("/api/sentiments", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(chimw.Timeout(requestTimeout))
		r.Get("/latest", sentimentHandler.Latest)
		r.Get("/trend", sentimentHandler.Trend)
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.SimilarMiddleware()).Get("/similar", sentimentHandler.Similar)
		} else {
			r.Get("/similar", sentimentHandler.Similar)
		}
	})

	return r
}
