package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/post"
)

// --- モック定義 ---

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	listFn     func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error)
	criticalFn func(q post.CriticalQuery, limit int) *post.CriticalResult
	statsFn    func() post.AnsweredStats
}

func (m *mockPostService) List(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(state, sortKey, offset, limit, view)
	}
	return &post.ListResult{}, nil
}

func (m *mockPostService) CriticalPosts(q post.CriticalQuery, limit int) *post.CriticalResult {
	if m.criticalFn != nil {
		return m.criticalFn(q, limit)
	}
	return &post.CriticalResult{}
}

func (m *mockPostService) Stats() post.AnsweredStats {
	if m.statsFn != nil {
		return m.statsFn()
	}
	return post.AnsweredStats{}
}

// --- テストヘルパー ---

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- GET /api/posts テスト ---

func TestPostHandler_ListPosts_Defaults(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			if !state.IsZero() {
				t.Errorf("state = %+v, want zero value", state)
			}
			if sortKey != "" {
				t.Errorf("sortKey = %q, want empty", sortKey)
			}
			if offset != 0 {
				t.Errorf("offset = %d, want 0", offset)
			}
			if limit != 20 {
				t.Errorf("limit = %d, want 20", limit)
			}
			if view != post.ViewGallery {
				t.Errorf("view = %q, want %q", view, post.ViewGallery)
			}
			return &post.ListResult{
				Items: []model.Post{
					{
						ID:             1,
						Content:        "バッテリーの持ちが素晴らしい",
						Source:         "Twitter",
						Language:       "ja",
						CreatedAt:      now,
						SentimentLabel: model.SentimentPositive,
						SentimentScore: 0.9,
						RelevanceScore: 7.5,
					},
				},
				Total:   42,
				HasMore: true,
			}, nil
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var result postListResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Posts) != 1 {
		t.Fatalf("posts length = %d, want 1", len(result.Posts))
	}
	if result.Total != 42 {
		t.Errorf("total = %d, want 42", result.Total)
	}
	if !result.HasMore {
		t.Error("expected has_more to be true")
	}
	if got := result.Posts[0].CreatedAt; got != "2026-08-30T12:00:00Z" {
		t.Errorf("created_at = %q, want RFC3339", got)
	}
	if result.Posts[0].SentimentLabel != "positive" {
		t.Errorf("sentiment_label = %q, want %q", result.Posts[0].SentimentLabel, "positive")
	}
}

func TestPostHandler_ListPosts_QueryParams(t *testing.T) {
	var gotState model.FilterState
	var gotSort model.SortKey
	var gotView post.View
	var gotOffset, gotLimit int
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			gotState = state
			gotSort = sortKey
			gotOffset = offset
			gotLimit = limit
			gotView = view
			return &post.ListResult{}, nil
		},
	}

	h := NewPostHandler(svc)

	url := "/api/posts?search=battery&sentiment=negative&language=ja&product=ProPhone&source=Reddit" +
		"&answered=0&date_from=2026-08-01&date_to=2026-08-31&sort=relevancy-desc&offset=40&limit=10&view=list"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotState.Search != "battery" {
		t.Errorf("Search = %q, want %q", gotState.Search, "battery")
	}
	if gotState.Sentiment != "negative" {
		t.Errorf("Sentiment = %q, want %q", gotState.Sentiment, "negative")
	}
	if gotState.Language != "ja" {
		t.Errorf("Language = %q, want %q", gotState.Language, "ja")
	}
	if gotState.Product != "ProPhone" {
		t.Errorf("Product = %q, want %q", gotState.Product, "ProPhone")
	}
	if gotState.Source != "Reddit" {
		t.Errorf("Source = %q, want %q", gotState.Source, "Reddit")
	}
	if gotState.Answered != "0" {
		t.Errorf("Answered = %q, want %q", gotState.Answered, "0")
	}
	wantFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !gotState.DateFrom.Equal(wantFrom) {
		t.Errorf("DateFrom = %v, want %v", gotState.DateFrom, wantFrom)
	}
	wantTo := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !gotState.DateTo.Equal(wantTo) {
		t.Errorf("DateTo = %v, want %v", gotState.DateTo, wantTo)
	}
	if gotSort != model.SortRelevancyDesc {
		t.Errorf("sortKey = %q, want %q", gotSort, model.SortRelevancyDesc)
	}
	if gotOffset != 40 {
		t.Errorf("offset = %d, want 40", gotOffset)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	if gotView != post.ViewList {
		t.Errorf("view = %q, want %q", gotView, post.ViewList)
	}
}

func TestPostHandler_ListPosts_InvalidDate(t *testing.T) {
	called := false
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			called = true
			return &post.ListResult{}, nil
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?date_from=2026/08/01", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called on invalid date")
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeInvalidDate {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInvalidDate)
	}
	if body["category"] != "validation" {
		t.Errorf("category = %q, want %q", body["category"], "validation")
	}
}

func TestPostHandler_ListPosts_InvalidSort(t *testing.T) {
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			return nil, model.NewInvalidSortError(string(sortKey))
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?sort=alphabetical", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeInvalidSort {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInvalidSort)
	}
}

func TestPostHandler_ListPosts_InvalidPaginationFallsBack(t *testing.T) {
	var gotOffset, gotLimit int
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			gotOffset = offset
			gotLimit = limit
			return &post.ListResult{}, nil
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?offset=abc&limit=-5", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotOffset != 0 {
		t.Errorf("offset = %d, want 0", gotOffset)
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want 20", gotLimit)
	}
}

func TestPostHandler_ListPosts_DatelessPostHasEmptyCreatedAt(t *testing.T) {
	svc := &mockPostService{
		listFn: func(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error) {
			return &post.ListResult{
				Items: []model.Post{{ID: 9, Content: "日付なし投稿"}},
				Total: 1,
			}, nil
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	var result postListResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Posts) != 1 {
		t.Fatalf("posts length = %d, want 1", len(result.Posts))
	}
	if result.Posts[0].CreatedAt != "" {
		t.Errorf("created_at = %q, want empty string", result.Posts[0].CreatedAt)
	}
}

// --- GET /api/posts/critical テスト ---

func TestPostHandler_CriticalPosts_Defaults(t *testing.T) {
	svc := &mockPostService{
		criticalFn: func(q post.CriticalQuery, limit int) *post.CriticalResult {
			if q.Sentiment != "" {
				t.Errorf("Sentiment = %q, want empty", q.Sentiment)
			}
			if q.PeriodDays != 0 {
				t.Errorf("PeriodDays = %d, want 0", q.PeriodDays)
			}
			if q.Mode != post.CriticalModeScore {
				t.Errorf("Mode = %q, want %q", q.Mode, post.CriticalModeScore)
			}
			if limit != 50 {
				t.Errorf("limit = %d, want 50", limit)
			}
			return &post.CriticalResult{
				Items: []model.Post{{ID: 3, SentimentLabel: model.SentimentNegative}},
				Total: 120,
			}
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/critical", nil)
	w := httptest.NewRecorder()

	h.CriticalPosts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result criticalListResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Posts) != 1 {
		t.Errorf("posts length = %d, want 1", len(result.Posts))
	}
	if result.Total != 120 {
		t.Errorf("total = %d, want 120", result.Total)
	}
}

func TestPostHandler_CriticalPosts_QueryParams(t *testing.T) {
	var gotQuery post.CriticalQuery
	var gotLimit int
	svc := &mockPostService{
		criticalFn: func(q post.CriticalQuery, limit int) *post.CriticalResult {
			gotQuery = q
			gotLimit = limit
			return &post.CriticalResult{}
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/critical?sentiment=negative&period_days=7&sort=recent&search=%20crash%20&limit=10", nil)
	w := httptest.NewRecorder()

	h.CriticalPosts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotQuery.Sentiment != "negative" {
		t.Errorf("Sentiment = %q, want %q", gotQuery.Sentiment, "negative")
	}
	if gotQuery.PeriodDays != 7 {
		t.Errorf("PeriodDays = %d, want 7", gotQuery.PeriodDays)
	}
	if gotQuery.Mode != post.CriticalModeRecent {
		t.Errorf("Mode = %q, want %q", gotQuery.Mode, post.CriticalModeRecent)
	}
	if gotQuery.Search != "crash" {
		t.Errorf("Search = %q, want %q", gotQuery.Search, "crash")
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
}

func TestPostHandler_CriticalPosts_AllSentimentNormalized(t *testing.T) {
	var gotQuery post.CriticalQuery
	svc := &mockPostService{
		criticalFn: func(q post.CriticalQuery, limit int) *post.CriticalResult {
			gotQuery = q
			return &post.CriticalResult{}
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/critical?sentiment=All", nil)
	w := httptest.NewRecorder()

	h.CriticalPosts(w, req)

	if gotQuery.Sentiment != "" {
		t.Errorf("Sentiment = %q, want empty", gotQuery.Sentiment)
	}
}

func TestPostHandler_CriticalPosts_InvalidPeriod(t *testing.T) {
	called := false
	svc := &mockPostService{
		criticalFn: func(q post.CriticalQuery, limit int) *post.CriticalResult {
			called = true
			return &post.CriticalResult{}
		},
	}

	h := NewPostHandler(svc)

	for _, raw := range []string{"zero", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/posts/critical?period_days="+raw, nil)
		w := httptest.NewRecorder()

		h.CriticalPosts(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("period_days=%q: status = %d, want %d", raw, w.Code, http.StatusBadRequest)
		}
		body := parseAPIErrorResponse(t, w)
		if body["code"] != model.ErrCodeInvalidPeriod {
			t.Errorf("period_days=%q: code = %q, want %q", raw, body["code"], model.ErrCodeInvalidPeriod)
		}
	}
	if called {
		t.Error("service should not be called on invalid period")
	}
}

// --- GET /api/posts/stats/answered テスト ---

func TestPostHandler_AnsweredStats(t *testing.T) {
	svc := &mockPostService{
		statsFn: func() post.AnsweredStats {
			return post.AnsweredStats{
				Answered:           30,
				NotAnswered:        70,
				Total:              100,
				AnsweredPercentage: 30.0,
			}
		},
	}

	h := NewPostHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/stats/answered", nil)
	w := httptest.NewRecorder()

	h.AnsweredStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result answeredStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Answered != 30 || result.NotAnswered != 70 || result.Total != 100 {
		t.Errorf("stats = %+v, want 30/70/100", result)
	}
	if result.AnsweredPercentage != 30.0 {
		t.Errorf("answered_percentage = %v, want 30.0", result.AnsweredPercentage)
	}
}
