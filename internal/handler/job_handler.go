package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
)

// defaultJobHistoryLimit は設定ページのジョブ履歴の取得件数。
const defaultJobHistoryLimit = 50

// ScraperClientInterface はジョブハンドラーが必要とするバックエンドクライアント。
type ScraperClientInterface interface {
	// CreateJob はバックエンドにスクレイプジョブを投入し、job_idを返す。
	CreateJob(ctx context.Context, sources []string) (string, error)
	// GetJob はバックエンドのジョブ状態を取得する。未知のジョブはnilを返す。
	GetJob(ctx context.Context, jobID string) (*model.ScrapeJob, error)
	// CancelJob はバックエンドのジョブをキャンセルする。
	CancelJob(ctx context.Context, jobID string) error
}

// JobRecordStore はジョブ記録の永続化に必要なインターフェース。
// repository.ScrapeJobRepositoryの部分集合として定義する。
type JobRecordStore interface {
	Create(ctx context.Context, job *model.ScrapeJob) error
	FindByID(ctx context.Context, id string) (*model.ScrapeJob, error)
	List(ctx context.Context, limit int) ([]*model.ScrapeJob, error)
	UpdateStatus(ctx context.Context, job *model.ScrapeJob) error
}

// JobWatcher はジョブ監視の開始に必要なインターフェース。
// jobpoll.Pollerを抽象化してテスタビリティを向上させる。
type JobWatcher interface {
	Watch(ctx context.Context, jobID string)
}

// JobMetricsRecorder はジョブ投入メトリクスのインターフェース。
type JobMetricsRecorder interface {
	RecordJobCreated()
}

type noopJobMetrics struct{}

func (noopJobMetrics) RecordJobCreated() {}

// JobHandler はスクレイプジョブ管理のHTTPハンドラー。
// ジョブの実体はバックエンドにあり、このハンドラーは投入の代理と
// ローカル記録・ライブ状態のマージを担う。
type JobHandler struct {
	client  ScraperClientInterface
	records JobRecordStore
	watcher JobWatcher
	logger  *slog.Logger
	metrics JobMetricsRecorder

	// watchCtx はポーリングゴルーチンの寿命を支配するコンテキスト。
	// リクエストコンテキストはレスポンス送信で打ち切られるため使えない。
	watchCtx context.Context

	now func() time.Time
}

// NewJobHandler はJobHandlerを生成する。
// watchCtxにはアプリケーション全体の寿命を持つコンテキストを渡すこと。
func NewJobHandler(watchCtx context.Context, client ScraperClientInterface, records JobRecordStore, watcher JobWatcher, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		client:   client,
		records:  records,
		watcher:  watcher,
		logger:   logger,
		metrics:  noopJobMetrics{},
		watchCtx: watchCtx,
		now:      time.Now,
	}
}

// SetMetrics はメトリクスレコーダーを設定する。起動時の配線専用。
func (h *JobHandler) SetMetrics(m JobMetricsRecorder) {
	h.metrics = m
}

// --- リクエスト/レスポンス型 ---

// createJobRequest はジョブ投入リクエストのボディ。
type createJobRequest struct {
	Sources []string `json:"sources"`
}

// createJobResponse はジョブ投入のレスポンス。
type createJobResponse struct {
	JobID string `json:"job_id"`
}

// jobResponse はジョブ状態のJSON表現。
type jobResponse struct {
	ID         string          `json:"id"`
	Sources    []string        `json:"sources"`
	Status     string          `json:"status"`
	Progress   jobProgressBody `json:"progress"`
	Results    json.RawMessage `json:"results,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type jobProgressBody struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

func toJobResponse(job *model.ScrapeJob) jobResponse {
	return jobResponse{
		ID:      job.ID,
		Sources: job.Sources,
		Status:  string(job.Status),
		Progress: jobProgressBody{
			Completed: job.Progress.Completed,
			Total:     job.Progress.Total,
		},
		Results:    job.Results,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		FinishedAt: job.FinishedAt,
	}
}

// CreateJob はスクレイプジョブをバックエンドに投入する。
// POST /api/scrape-jobs
// 投入成功時はローカル記録を作成し、ポーリング監視を開始して202を返す。
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("ボディの解析に失敗しました"))
		return
	}

	sources := make([]string, 0, len(req.Sources))
	for _, s := range req.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("収集対象のソースを1件以上指定してください"))
		return
	}

	jobID, err := h.client.CreateJob(r.Context(), sources)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	now := h.now()
	record := &model.ScrapeJob{
		ID:        jobID,
		Sources:   sources,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.records.Create(r.Context(), record); err != nil {
		// バックエンドには投入済み。記録の失敗で投入を失敗扱いにはしない
		h.logger.Error("ジョブ記録の作成に失敗しました",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	h.watcher.Watch(h.watchCtx, jobID)
	h.metrics.RecordJobCreated()

	h.logger.Info("スクレイプジョブを投入しました",
		slog.String("job_id", jobID),
		slog.Int("source_count", len(sources)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(createJobResponse{JobID: jobID})
}

// GetJob はジョブ状態を取得する。
// GET /api/jobs/:id
// ローカル記録をライブのバックエンド状態とマージして返す。
// バックエンドが落ちている場合はローカル記録をそのまま返す。
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	record, err := h.records.FindByID(r.Context(), jobID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if record == nil {
		middleware.WriteAPIError(w, model.NewJobNotFoundError(jobID))
		return
	}

	// 終端状態でなければライブ状態を取りに行く
	if !record.Status.IsTerminal() {
		live, err := h.client.GetJob(r.Context(), jobID)
		if err != nil {
			h.logger.Warn("ライブ状態の取得に失敗したためローカル記録を返します",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		} else if live != nil {
			record.Status = live.Status
			record.Progress = live.Progress
			if len(live.Results) > 0 {
				record.Results = live.Results
			}
			if live.Error != "" {
				record.Error = live.Error
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toJobResponse(record))
}

// ListJobs はジョブ履歴を取得する。
// GET /api/jobs?limit=
// 設定ページの履歴表示用。作成日時の降順で返す。
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), defaultJobHistoryLimit)

	records, err := h.records.List(r.Context(), limit)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	jobs := make([]jobResponse, len(records))
	for i, rec := range records {
		jobs[i] = toJobResponse(rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jobs": jobs})
}

// CancelJob はジョブをキャンセルする。
// POST /api/jobs/:id/cancel
// 終端状態のジョブはキャンセルできない（409）。
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	record, err := h.records.FindByID(r.Context(), jobID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if record == nil {
		middleware.WriteAPIError(w, model.NewJobNotFoundError(jobID))
		return
	}
	if record.Status.IsTerminal() {
		middleware.WriteAPIError(w, model.NewJobNotCancellableError(jobID, record.Status))
		return
	}

	if err := h.client.CancelJob(r.Context(), jobID); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	now := h.now()
	record.Status = model.JobStatusCancelled
	record.UpdatedAt = now
	record.FinishedAt = &now
	if err := h.records.UpdateStatus(r.Context(), record); err != nil {
		h.logger.Error("キャンセル状態の記録に失敗しました",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("スクレイプジョブをキャンセルしました", slog.String("job_id", jobID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toJobResponse(record))
}
