package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/brandpulse/internal/config"
	"github.com/hitoshi/brandpulse/internal/database"
	"github.com/hitoshi/brandpulse/internal/handler"
	"github.com/hitoshi/brandpulse/internal/logger"
	"github.com/hitoshi/brandpulse/internal/metrics"
	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/post"
	"github.com/hitoshi/brandpulse/internal/relevance"
	"github.com/hitoshi/brandpulse/internal/repository"
	"github.com/hitoshi/brandpulse/internal/scraper"
	"github.com/hitoshi/brandpulse/internal/security"
	"github.com/hitoshi/brandpulse/internal/settings"
	"github.com/hitoshi/brandpulse/internal/worker/cleanup"
	"github.com/hitoshi/brandpulse/internal/worker/jobpoll"
	"github.com/hitoshi/brandpulse/internal/worker/refresh"
)

// resumeWatchLimit は起動時にポーリング再開を試みるジョブ記録の最大件数。
const resumeWatchLimit = 100

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("scraper_base_url", cfg.ScraperBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、スクレイパークライアント・インメモリストア・ワーカー群を
// ワイヤリングし、HTTPサーバーを起動する。投稿コレクションはプロセス内
// メモリに持つため、リフレッシュとジョブポーリングも同一プロセスで動く。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	apiKeyRepo := repository.NewPostgresAPIKeyRepo(db)
	jobRepo := repository.NewPostgresScrapeJobRepo(db)

	// 3. メトリクスの初期化
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 4. スクレイパークライアントの初期化（SSRF防止付き）
	guard := security.NewBackendGuardForURL(cfg.ScraperBaseURL, cfg.ScraperAllowPrivate)
	client, err := scraper.NewClient(
		cfg.ScraperBaseURL, guard, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize, cfg.BackendPageSize,
	)
	if err != nil {
		return fmt.Errorf("failed to create scraper client: %w", err)
	}
	client.SetMetrics(collector)

	// 5. 投稿パイプラインの初期化
	store := post.NewStore(post.Options{ExcludeIrrelevant: true}, cfg.FilterDebounce)
	store.SetOnRecompute(collector.RecordRecompute)
	scorer := relevance.NewDefaultScorer()
	sanitizer := security.NewContentSanitizer()
	postService := post.NewService(store, scorer, sanitizer)

	// 6. ワーカーの初期化
	refresher := refresh.NewRefresher(client, postService, slog.Default())
	refresher.SetMetrics(collector)

	poller := jobpoll.NewPoller(client, jobRepo, refresher, slog.Default(), cfg.JobPollInterval)
	poller.SetMetrics(collector)

	// 7. APIキーサービスの初期化
	apiKeyService := settings.NewAPIKeyService(apiKeyRepo)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 8. リフレッシュワーカーをバックグラウンドで起動
	go refresher.Start(ctx, cfg.RefreshInterval)

	// 9. 未終了ジョブのポーリングを再開する
	// プロセス再起動でポーリングゴルーチンが失われるため、終端状態に
	// 達していない記録を拾い直す
	resumeWatches(ctx, jobRepo, poller)

	// 10. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.ScrapeJobRate = rate.Limit(float64(cfg.RateLimitScrapeJob) / 60.0)
	rateLimiterCfg.ScrapeJobBurst = cfg.RateLimitScrapeJob

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		KeyAuthenticator:  apiKeyService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		PostService: postService,

		ScraperClient: client,
		JobRecords:    jobRepo,
		JobWatcher:    poller,
		WatchContext:  ctx,
		JobMetrics:    collector,

		APIKeyService: apiKeyService,

		MetricsGatherer: reg,
	}

	router := handler.NewRouter(deps)

	// 11. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// ワーカーを停止してポーリングゴルーチンの終了を待つ
	cancel()
	poller.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// resumeWatches は終端状態に達していないジョブ記録のポーリングを再開する。
func resumeWatches(ctx context.Context, jobRepo *repository.PostgresScrapeJobRepo, poller *jobpoll.Poller) {
	records, err := jobRepo.List(ctx, resumeWatchLimit)
	if err != nil {
		slog.Error("failed to load job records for resume",
			slog.String("error", err.Error()),
		)
		return
	}

	resumed := 0
	for _, rec := range records {
		if rec.Status.IsTerminal() {
			continue
		}
		poller.Watch(ctx, rec.ID)
		resumed++
	}

	if resumed > 0 {
		slog.Info("resumed job polling", slog.Int("job_count", resumed))
	}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ジョブ記録の保持期間クリーンアップを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	jobRepo := repository.NewPostgresScrapeJobRepo(db)
	cleanupJob := cleanup.NewCleanupJob(jobRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.JobRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("retention_days", cfg.JobRetentionDays),
	)

	// クリーンアップジョブを日次で実行（ブロッキング）
	// 起動直後に1回実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
