// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/post"
)

// defaultPostsPerPage は投稿一覧の1回の取得件数（デフォルト）。
const defaultPostsPerPage = 20

// defaultCriticalLimit は重要投稿の表示上限（デフォルト）。
// ランキング全体の件数はtotalで返す。
const defaultCriticalLimit = 50

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// List は投稿一覧をフィルタ・ソート・ページネーション付きで返す。
	List(state model.FilterState, sortKey model.SortKey, offset, limit int, view post.View) (*post.ListResult, error)
	// CriticalPosts は重要投稿ランキングを返す。
	CriticalPosts(q post.CriticalQuery, limit int) *post.CriticalResult
	// Stats は回答状況の統計を返す。
	Stats() post.AnsweredStats
}

// PostHandler は投稿閲覧のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// --- レスポンス型 ---

// postResponse は投稿1件のJSON表現。
type postResponse struct {
	ID             int64   `json:"id"`
	Content        string  `json:"content"` // サニタイズ済みHTML
	URL            string  `json:"url"`
	Author         string  `json:"author"`
	Source         string  `json:"source"`
	Language       string  `json:"language"`
	CreatedAt      string  `json:"created_at"` // RFC3339。日付なしは空文字列
	SentimentLabel string  `json:"sentiment_label"`
	SentimentScore float64 `json:"sentiment_score"`
	RelevanceScore float64 `json:"relevance_score"`
	Product        string  `json:"product"`
	IsAnswered     bool    `json:"is_answered"`
	Views          int     `json:"views"`
	Comments       int     `json:"comments"`
	Reactions      int     `json:"reactions"`
}

// postListResponse は投稿一覧のレスポンス。
type postListResponse struct {
	Posts   []postResponse `json:"posts"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// criticalListResponse は重要投稿一覧のレスポンス。
// totalは切り詰め前の全件数（"N of M"表示用）。
type criticalListResponse struct {
	Posts []postResponse `json:"posts"`
	Total int            `json:"total"`
}

// answeredStatsResponse は回答状況統計のレスポンス。
type answeredStatsResponse struct {
	Answered           int     `json:"answered"`
	NotAnswered        int     `json:"not_answered"`
	Total              int     `json:"total"`
	AnsweredPercentage float64 `json:"answered_percentage"`
}

// toPostResponse はドメインのPostをレスポンス型に変換する。
func toPostResponse(p model.Post) postResponse {
	createdAt := ""
	if p.HasDate() {
		createdAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return postResponse{
		ID:             p.ID,
		Content:        p.Content,
		URL:            p.URL,
		Author:         p.Author,
		Source:         p.Source,
		Language:       p.Language,
		CreatedAt:      createdAt,
		SentimentLabel: string(p.SentimentLabel),
		SentimentScore: p.SentimentScore,
		RelevanceScore: p.RelevanceScore,
		Product:        p.Product,
		IsAnswered:     p.IsAnswered,
		Views:          p.Views,
		Comments:       p.Comments,
		Reactions:      p.Reactions,
	}
}

func toPostResponses(posts []model.Post) []postResponse {
	out := make([]postResponse, len(posts))
	for i, p := range posts {
		out[i] = toPostResponse(p)
	}
	return out
}

// ListPosts は投稿一覧を取得する。
// GET /api/posts?search=&sentiment=&language=&product=&source=&answered=
//
//	&date_from=&date_to=&sort=&offset=&limit=&view=gallery|list
//
// sentiment等の"all"と未指定は「条件なし」として扱う。
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state, err := parseFilterState(q)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	sortKey := model.SortKey(q.Get("sort"))
	offset := parseIntParam(q.Get("offset"), 0)
	limit := parseIntParam(q.Get("limit"), defaultPostsPerPage)

	view := post.ViewGallery
	if q.Get("view") == string(post.ViewList) {
		view = post.ViewList
	}

	result, err := h.service.List(state, sortKey, offset, limit, view)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postListResponse{
		Posts:   toPostResponses(result.Items),
		Total:   result.Total,
		HasMore: result.HasMore,
	})
}

// CriticalPosts は重要投稿ランキングを取得する。
// GET /api/posts/critical?sentiment=&period_days=&sort=score|recent&search=&limit=
func (h *PostHandler) CriticalPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	periodDays := 0
	if raw := q.Get("period_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteAPIError(w, model.NewInvalidPeriodError(raw))
			return
		}
		periodDays = n
	}

	mode := post.CriticalModeScore
	if q.Get("sort") == string(post.CriticalModeRecent) {
		mode = post.CriticalModeRecent
	}

	query := post.CriticalQuery{
		Sentiment:  canonicalQueryValue(q.Get("sentiment")),
		PeriodDays: periodDays,
		Search:     strings.TrimSpace(q.Get("search")),
		Mode:       mode,
	}
	limit := parseIntParam(q.Get("limit"), defaultCriticalLimit)

	result := h.service.CriticalPosts(query, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(criticalListResponse{
		Posts: toPostResponses(result.Items),
		Total: result.Total,
	})
}

// AnsweredStats は回答状況の統計を取得する。
// GET /api/posts/stats/answered
func (h *PostHandler) AnsweredStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answeredStatsResponse{
		Answered:           stats.Answered,
		NotAnswered:        stats.NotAnswered,
		Total:              stats.Total,
		AnsweredPercentage: stats.AnsweredPercentage,
	})
}

// parseFilterState はクエリパラメータからFilterStateを組み立てる。
// "all"の正規化はサービス側のCanonicalにも冪等に通るが、
// 日付の形式エラーはここで検出してAPIErrorにする。
func parseFilterState(q map[string][]string) (model.FilterState, error) {
	get := func(key string) string {
		if vs, ok := q[key]; ok && len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	state := model.FilterState{
		Search:    get("search"),
		Sentiment: get("sentiment"),
		Language:  get("language"),
		Product:   get("product"),
		Source:    get("source"),
		Answered:  get("answered"),
	}

	if raw := get("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return model.FilterState{}, model.NewInvalidDateError(raw)
		}
		state.DateFrom = t.UTC()
	}
	if raw := get("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return model.FilterState{}, model.NewInvalidDateError(raw)
		}
		state.DateTo = t.UTC()
	}

	return state, nil
}

// canonicalQueryValue は"all"センチネルと空白を空文字列に落とす。
func canonicalQueryValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

// parseIntParam は非負整数パラメータをパースする。不正値はデフォルトに落とす。
func parseIntParam(raw string, defaultVal int) int {
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
