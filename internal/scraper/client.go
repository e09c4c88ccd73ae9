package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// SafeClientFactory はSSRF防止機能付きHTTPクライアントの生成インターフェース。
type SafeClientFactory interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// MetricsRecorder はバックエンド呼び出しのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordBackendStatus(statusCode int)
	RecordBackendLatency(duration time.Duration)
}

// noopMetrics はメトリクス未配線時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordBackendStatus(statusCode int)          {}
func (noopMetrics) RecordBackendLatency(duration time.Duration) {}

// Client はスクレイパーバックエンドのHTTPクライアント。
// 投稿一覧の取得、スクレイプジョブの作成・状態取得・キャンセルを行う。
// バックエンドURLは運用者が設定するため、生成時にSSRF検証を通す。
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     MetricsRecorder
	maxBodySize int64
	pageSize    int
}

// NewClient はClientを生成する。baseURLのSSRF検証に失敗した場合はエラーを返す。
func NewClient(
	baseURL string,
	factory SafeClientFactory,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	pageSize int,
) (*Client, error) {
	if err := factory.ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("バックエンドURLの検証に失敗: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  factory.NewSafeClient(timeout, maxBodySize),
		logger:      logger,
		metrics:     noopMetrics{},
		maxBodySize: maxBodySize,
		pageSize:    pageSize,
	}, nil
}

// SetMetrics はメトリクスレコーダーを設定する。起動時の配線専用。
func (c *Client) SetMetrics(m MetricsRecorder) {
	if m != nil {
		c.metrics = m
	}
}

// listPostsResponse はGET /api/postsのレスポンス形式。
type listPostsResponse struct {
	Posts []model.Post `json:"posts"`
	Total int          `json:"total"`
}

// ListPosts は投稿の1ページを取得する。
func (c *Client) ListPosts(ctx context.Context, limit, offset int) ([]model.Post, int, error) {
	endpoint := fmt.Sprintf("%s/api/posts?%s", c.baseURL, url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, 0, err
	}

	var resp listPostsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("投稿一覧のパースに失敗: %w", err)
	}
	return resp.Posts, resp.Total, nil
}

// FetchAllPosts は投稿コレクション全体をページングで取得する。
// 定期リフレッシュとジョブ完了時の全量置換に使用する。
func (c *Client) FetchAllPosts(ctx context.Context) ([]model.Post, error) {
	var all []model.Post
	offset := 0
	for {
		posts, total, err := c.ListPosts(ctx, c.pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, posts...)
		offset += len(posts)

		// 空ページは終端。totalは参考値であり、
		// フェッチ中の増減でずれてもループは必ず停止する。
		if len(posts) == 0 || offset >= total {
			break
		}
	}

	c.logger.Info("バックエンドから投稿を取得しました",
		slog.Int("count", len(all)),
	)
	return all, nil
}

// createJobRequest はPOST /api/scrape-jobのリクエスト形式。
type createJobRequest struct {
	Sources []string `json:"sources,omitempty"`
}

// createJobResponse はPOST /api/scrape-jobのレスポンス形式。
type createJobResponse struct {
	JobID string `json:"job_id"`
}

// CreateJob はバックエンドにスクレイプジョブの作成を依頼し、job_idを返す。
func (c *Client) CreateJob(ctx context.Context, sources []string) (string, error) {
	payload, err := json.Marshal(createJobRequest{Sources: sources})
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	endpoint := c.baseURL + "/api/scrape-job"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp createJobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ジョブ作成レスポンスのパースに失敗: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("バックエンドがjob_idを返しませんでした")
	}
	return resp.JobID, nil
}

// jobStatusResponse はGET /api/jobs/{id}のレスポンス形式。
type jobStatusResponse struct {
	JobID    string            `json:"job_id"`
	Status   string            `json:"status"`
	Progress model.JobProgress `json:"progress"`
	Results  json.RawMessage   `json:"results,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// GetJob はジョブの現在状態を取得する。
// バックエンドがジョブを知らない場合（404/410）は(nil, nil)を返す。
// ポーリングループはnilをポーリング停止のシグナルとして扱う。
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.ScrapeJob, error) {
	endpoint := c.baseURL + "/api/jobs/" + url.PathEscape(jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewBackendUnavailableError(err.Error())
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendStatus(resp.StatusCode)
	c.metrics.RecordBackendLatency(time.Since(start))

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case CallResultOK:
		// 以下で処理を続行
	case CallResultNotFound:
		return nil, nil
	default:
		return nil, model.NewBackendUnavailableError(
			fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取りに失敗: %w", err)
	}

	var js jobStatusResponse
	if err := json.Unmarshal(body, &js); err != nil {
		return nil, fmt.Errorf("ジョブ状態のパースに失敗: %w", err)
	}
	return &model.ScrapeJob{
		ID:       js.JobID,
		Status:   model.JobStatus(js.Status),
		Progress: js.Progress,
		Results:  js.Results,
		Error:    js.Error,
	}, nil
}

// CancelJob はジョブのキャンセルを依頼する。
// バックエンドがジョブを知らない場合はJobNotFoundエラーを返す。
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	endpoint := c.baseURL + "/api/jobs/" + url.PathEscape(jobID) + "/cancel"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewBackendUnavailableError(err.Error())
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendStatus(resp.StatusCode)
	c.metrics.RecordBackendLatency(time.Since(start))

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case CallResultOK:
		return nil
	case CallResultNotFound:
		return model.NewJobNotFoundError(jobID)
	default:
		return model.NewBackendUnavailableError(
			fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
	}
}

// get はGETリクエストを実行し、成功時のレスポンスボディを返す。
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	return c.do(req)
}

// do はリクエストを実行し、200以外をBackendUnavailableとして扱う。
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("バックエンドへのリクエストに失敗しました",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return nil, model.NewBackendUnavailableError(err.Error())
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendStatus(resp.StatusCode)
	c.metrics.RecordBackendLatency(time.Since(start))

	if ClassifyHTTPStatus(resp.StatusCode) != CallResultOK {
		c.logger.Warn("バックエンドが想定外のステータスを返しました",
			slog.String("url", req.URL.String()),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewBackendUnavailableError(
			fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取りに失敗: %w", err)
	}
	return body, nil
}
