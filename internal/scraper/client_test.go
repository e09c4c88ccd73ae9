package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockSafeClientFactory はSafeClientFactoryのテスト用モック。
// httptestサーバー（ループバック）に接続できるよう素のクライアントを返す。
type mockSafeClientFactory struct {
	validateErr error
}

func (m *mockSafeClientFactory) ValidateURL(_ string) error {
	return m.validateErr
}

func (m *mockSafeClientFactory) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// recordingMetrics はMetricsRecorderのテスト用モック。
type recordingMetrics struct {
	statuses  []int
	latencies int
}

func (r *recordingMetrics) RecordBackendStatus(statusCode int) {
	r.statuses = append(r.statuses, statusCode)
}

func (r *recordingMetrics) RecordBackendLatency(_ time.Duration) {
	r.latencies++
}

func newTestClient(t *testing.T, serverURL string, pageSize int) *Client {
	t.Helper()
	var buf bytes.Buffer
	c, err := NewClient(serverURL, &mockSafeClientFactory{}, newTestLogger(&buf), 5*time.Second, 5*1024*1024, pageSize)
	if err != nil {
		t.Fatalf("NewClient が失敗した: %v", err)
	}
	return c
}

func TestNewClient_RejectsInvalidBaseURL(t *testing.T) {
	var buf bytes.Buffer
	factory := &mockSafeClientFactory{validateErr: fmt.Errorf("blocked host")}
	_, err := NewClient("http://localhost:9999", factory, newTestLogger(&buf), time.Second, 1024, 10)
	if err == nil {
		t.Fatal("SSRF検証に失敗したURLは拒否されるべき")
	}
}

func TestClient_ListPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/posts" {
			t.Errorf("パス: want /api/posts, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit: want 10, got %s", got)
		}
		if got := r.URL.Query().Get("offset"); got != "5" {
			t.Errorf("offset: want 5, got %s", got)
		}
		fmt.Fprint(w, `{"posts":[{"id":1,"content":"OVH is great","sentiment_label":"positive"}],"total":42}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	posts, total, err := c.ListPosts(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("ListPosts が失敗した: %v", err)
	}
	if total != 42 {
		t.Errorf("total: want 42, got %d", total)
	}
	if len(posts) != 1 || posts[0].ID != 1 {
		t.Fatalf("投稿が正しくパースされていない: %+v", posts)
	}
	if posts[0].SentimentLabel != model.SentimentPositive {
		t.Errorf("sentiment_label: want positive, got %s", posts[0].SentimentLabel)
	}
}

func TestClient_FetchAllPostsPagesThrough(t *testing.T) {
	// 全5件をページサイズ2で3リクエストに分けて返す
	total := 5
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)

		var posts []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			posts = append(posts, map[string]any{"id": i + 1, "content": "p"})
		}
		json.NewEncoder(w).Encode(map[string]any{"posts": posts, "total": total})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	posts, err := c.FetchAllPosts(context.Background())
	if err != nil {
		t.Fatalf("FetchAllPosts が失敗した: %v", err)
	}
	if len(posts) != 5 {
		t.Fatalf("全5件を取得すべき, got %d", len(posts))
	}
	seen := map[int64]bool{}
	for _, p := range posts {
		if seen[p.ID] {
			t.Errorf("ID=%d が重複している", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestClient_FetchAllPostsStopsOnEmptyPage(t *testing.T) {
	// totalが嘘をついても空ページで必ず停止する
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"posts":[],"total":100}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	posts, err := c.FetchAllPosts(context.Background())
	if err != nil {
		t.Fatalf("FetchAllPosts が失敗した: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("want 0件, got %d", len(posts))
	}
}

func TestClient_CreateJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scrape-job" {
			t.Errorf("want POST /api/scrape-job, got %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Sources []string `json:"sources"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("リクエストボディのパースに失敗: %v", err)
		}
		if len(req.Sources) != 2 {
			t.Errorf("sources: want 2件, got %d", len(req.Sources))
		}
		fmt.Fprint(w, `{"job_id":"job-123"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	jobID, err := c.CreateJob(context.Background(), []string{"trustpilot", "reddit"})
	if err != nil {
		t.Fatalf("CreateJob が失敗した: %v", err)
	}
	if jobID != "job-123" {
		t.Errorf("job_id: want job-123, got %s", jobID)
	}
}

func TestClient_CreateJobMissingJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	if _, err := c.CreateJob(context.Background(), nil); err == nil {
		t.Fatal("job_idのないレスポンスはエラーを返すべき")
	}
}

func TestClient_GetJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/job-123" {
			t.Errorf("パス: want /api/jobs/job-123, got %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"job_id":"job-123","status":"running","progress":{"completed":3,"total":10}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	job, err := c.GetJob(context.Background(), "job-123")
	if err != nil {
		t.Fatalf("GetJob が失敗した: %v", err)
	}
	if job == nil {
		t.Fatal("jobはnilであってはならない")
	}
	if job.Status != model.JobStatusRunning {
		t.Errorf("status: want running, got %s", job.Status)
	}
	if job.Progress.Completed != 3 || job.Progress.Total != 10 {
		t.Errorf("progress: want 3/10, got %d/%d", job.Progress.Completed, job.Progress.Total)
	}
}

func TestClient_GetJobNotFoundReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	job, err := c.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("404はエラーではなくnilを返すべき: %v", err)
	}
	if job != nil {
		t.Errorf("404でjobはnilであるべき, got %+v", job)
	}
}

func TestClient_GetJobServerErrorReturnsBackendUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	_, err := c.GetJob(context.Background(), "job-123")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorを返すべき, got %T", err)
	}
	if apiErr.Code != model.ErrCodeBackendUnavailable {
		t.Errorf("コード: want %s, got %s", model.ErrCodeBackendUnavailable, apiErr.Code)
	}
}

func TestClient_CancelJob(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs/job-123/cancel" {
			t.Errorf("want POST /api/jobs/job-123/cancel, got %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	if err := c.CancelJob(context.Background(), "job-123"); err != nil {
		t.Fatalf("CancelJob が失敗した: %v", err)
	}
	if !called {
		t.Error("キャンセルエンドポイントが呼ばれていない")
	}
}

func TestClient_CancelJobNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	err := c.CancelJob(context.Background(), "missing")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorを返すべき, got %T", err)
	}
	if apiErr.Code != model.ErrCodeJobNotFound {
		t.Errorf("コード: want %s, got %s", model.ErrCodeJobNotFound, apiErr.Code)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"posts":[],"total":0}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)
	rec := &recordingMetrics{}
	c.SetMetrics(rec)

	if _, _, err := c.ListPosts(context.Background(), 10, 0); err != nil {
		t.Fatal(err)
	}
	if len(rec.statuses) != 1 || rec.statuses[0] != 200 {
		t.Errorf("ステータスが記録されるべき, got %v", rec.statuses)
	}
	if rec.latencies != 1 {
		t.Errorf("レイテンシが記録されるべき, got %d回", rec.latencies)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   CallResult
	}{
		{200, CallResultOK},
		{404, CallResultNotFound},
		{410, CallResultNotFound},
		{401, CallResultStop},
		{403, CallResultStop},
		{429, CallResultBackoff},
		{500, CallResultBackoff},
		{503, CallResultBackoff},
		{301, CallResultUnknown},
	}
	for _, c := range cases {
		if got := ClassifyHTTPStatus(c.status); got != c.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		errors int
		want   time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, c := range cases {
		if got := CalculateBackoff(c.errors); got != c.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", c.errors, got, c.want)
		}
	}
}
