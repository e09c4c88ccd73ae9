// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordRecompute()
	RecordPostsReplaced(count int)
	RecordPollOutcome(outcome string)
	RecordBackendStatus(statusCode int)
	RecordBackendLatency(duration time.Duration)
	RecordJobCreated()
}

// ポーリング結果のoutcomeラベル値。
const (
	PollOutcomeCompleted = "completed"
	PollOutcomeFailed    = "failed"
	PollOutcomeCancelled = "cancelled"
	PollOutcomeNotFound  = "not_found"
	PollOutcomeError     = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	recomputes     prometheus.Counter
	postsReplaced  prometheus.Counter
	pollOutcomes   *prometheus.CounterVec
	backendStatus  *prometheus.CounterVec
	backendLatency prometheus.Histogram
	jobsCreated    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandpulse_pipeline_recomputes_total",
			Help: "フィルタ・ソートパイプライン再計算の合計数",
		}),
		postsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandpulse_posts_replaced_total",
			Help: "バックエンドから取り込んで置換した投稿の合計数",
		}),
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_job_poll_outcomes_total",
			Help: "ジョブポーリングの終了結果別の合計数",
		}, []string{"outcome"}),
		backendStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_backend_http_status_total",
			Help: "スクレイパーバックエンドのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		backendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brandpulse_backend_latency_seconds",
			Help:    "スクレイパーバックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandpulse_scrape_jobs_created_total",
			Help: "作成されたスクレイプジョブの合計数",
		}),
	}

	reg.MustRegister(
		c.recomputes,
		c.postsReplaced,
		c.pollOutcomes,
		c.backendStatus,
		c.backendLatency,
		c.jobsCreated,
	)

	return c
}

// RecordRecompute はパイプライン再計算を記録する。
func (c *Collector) RecordRecompute() {
	c.recomputes.Inc()
}

// RecordPostsReplaced は取込置換した投稿数を記録する。
func (c *Collector) RecordPostsReplaced(count int) {
	c.postsReplaced.Add(float64(count))
}

// RecordPollOutcome はジョブポーリングの終了結果を記録する。
func (c *Collector) RecordPollOutcome(outcome string) {
	c.pollOutcomes.WithLabelValues(outcome).Inc()
}

// RecordBackendStatus はバックエンドのHTTPステータスコードを記録する。
func (c *Collector) RecordBackendStatus(statusCode int) {
	c.backendStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBackendLatency はバックエンド呼び出しのレイテンシを記録する。
func (c *Collector) RecordBackendLatency(duration time.Duration) {
	c.backendLatency.Observe(duration.Seconds())
}

// RecordJobCreated はスクレイプジョブの作成を記録する。
func (c *Collector) RecordJobCreated() {
	c.jobsCreated.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
