package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/brandpulse/internal/metrics"
	"github.com/hitoshi/brandpulse/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	KeyAuthenticator  middleware.KeyAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 投稿
	PostService PostServiceInterface

	// スクレイプジョブ
	ScraperClient ScraperClientInterface
	JobRecords    JobRecordStore
	JobWatcher    JobWatcher
	WatchContext  context.Context
	JobMetrics    JobMetricsRecorder

	// APIキー管理
	APIKeyService APIKeyServiceInterface

	// /metrics公開用のレジストリ。nilの場合は非公開
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders → APIKey → RateLimit(General)
//
// /health と /metrics は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	postHandler := NewPostHandler(deps.PostService)
	jobHandler := NewJobHandler(deps.WatchContext, deps.ScraperClient, deps.JobRecords, deps.JobWatcher, deps.Logger)
	if deps.JobMetrics != nil {
		jobHandler.SetMetrics(deps.JobMetrics)
	}
	keyHandler := NewAPIKeyHandler(deps.APIKeyService, deps.Logger)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: APIKey → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.KeyAuthenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 投稿一覧・重要投稿・統計
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Get("/critical", postHandler.CriticalPosts)
			r.Get("/stats/answered", postHandler.AnsweredStats)
		})

		// POST /api/scrape-jobs - ジョブ投入（投入専用レート制限を追加）
		r.With(deps.RateLimiter.ScrapeJobMiddleware()).Post("/api/scrape-jobs", jobHandler.CreateJob)

		// ジョブ状態・履歴
		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.ListJobs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jobHandler.GetJob)
				r.Post("/cancel", jobHandler.CancelJob)
			})
		})

		// APIキー管理
		r.Route("/api/keys", func(r chi.Router) {
			r.Post("/", keyHandler.CreateKey)
			r.Get("/", keyHandler.ListKeys)
			r.Delete("/{id}", keyHandler.RevokeKey)
		})
	})

	return r
}

// handleHealth はヘルスチェックに応答する。
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
