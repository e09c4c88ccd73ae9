// Package refresh は投稿コレクションの定期リフレッシュ処理を提供する。
// スクレイパーバックエンドから全投稿をページングで取得し、
// インメモリストアをまるごと置き換える。
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostFetcher はバックエンドからの投稿全量取得のインターフェース。
type PostFetcher interface {
	FetchAllPosts(ctx context.Context) ([]model.Post, error)
}

// PostReplacer は投稿コレクションの置換インターフェース。
// post.ServiceのReplaceAll（サニタイズ→関連度付与→置換）を抽象化する。
type PostReplacer interface {
	ReplaceAll(posts []model.Post)
}

// MetricsRecorder は取込メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordPostsReplaced(count int)
}

// noopMetrics はメトリクス未配線時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordPostsReplaced(count int) {}

// Refresher は定期リフレッシュワーカー。
// ジョブ完了時にはポーリングワーカーからRunOnceが直接呼ばれる。
type Refresher struct {
	fetcher  PostFetcher
	replacer PostReplacer
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(fetcher PostFetcher, replacer PostReplacer, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher:  fetcher,
		replacer: replacer,
		logger:   logger,
		metrics:  noopMetrics{},
	}
}

// SetMetrics はメトリクスレコーダーを設定する。起動時の配線専用。
func (r *Refresher) SetMetrics(m MetricsRecorder) {
	if m != nil {
		r.metrics = m
	}
}

// Start は指定間隔のティッカーでリフレッシュワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("リフレッシュワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("投稿リフレッシュの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("リフレッシュワーカーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("投稿リフレッシュの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はバックエンドから投稿全量を取得してストアを置き換える。
// 取得に失敗した場合は既存のコレクションを保持したままエラーを返す。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()

	posts, err := r.fetcher.FetchAllPosts(ctx)
	if err != nil {
		return err
	}

	r.replacer.ReplaceAll(posts)
	r.metrics.RecordPostsReplaced(len(posts))

	duration := time.Since(start)
	r.logger.Info("投稿コレクションを置き換えました",
		slog.Int("post_count", len(posts)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
