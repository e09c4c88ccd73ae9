package post

import (
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/relevance"
)

// View は投稿一覧のビュー種別を表す。
type View string

const (
	// ViewGallery はギャラリービュー。関連度スコア0の投稿を除外する。
	ViewGallery View = "gallery"
	// ViewList は旧ドロワー互換のリストビュー。関連度除外を行わない。
	ViewList View = "list"
)

// Sanitizer は投稿本文のHTMLサニタイズのインターフェース。
// security.ContentSanitizerServiceを抽象化してテスタビリティを向上させる。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Service は投稿パイプラインのサービスファサード。
// 取込時の導出フィールド付与（サニタイズ→関連度→製品ラベル）と、
// 一覧・重要投稿・統計の各クエリを提供する。
type Service struct {
	store     *Store
	scorer    *relevance.Scorer
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(store *Store, scorer *relevance.Scorer, sanitizer Sanitizer) *Service {
	return &Service{
		store:     store,
		scorer:    scorer,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// ReplaceAll は投稿コレクション全体を取り込み直す。
// 本文をサニタイズし、関連度スコアと製品ラベルを導出してから
// ストアをまるごと置き換える。
func (s *Service) ReplaceAll(posts []model.Post) {
	cleaned := make([]model.Post, len(posts))
	for i, p := range posts {
		p.Content = s.sanitizer.Sanitize(p.Content)
		cleaned[i] = p
	}
	s.store.ReplacePosts(s.scorer.Annotate(cleaned))
}

// ListResult は投稿一覧クエリの結果。
type ListResult struct {
	Items   []model.Post
	Total   int // フィルタ適用後の総件数（ページ切り出し前）
	HasMore bool
}

// List は投稿一覧をフィルタ・ソート・ページネーション付きで返す。
// stateは未正規化でよい（内部でCanonicalを適用する）。
// 無効なソートキーはAPIErrorを返す。
func (s *Service) List(state model.FilterState, sortKey model.SortKey, offset, limit int, view View) (*ListResult, error) {
	if sortKey == "" {
		sortKey = model.DefaultSortKey
	}
	if !model.ValidSortKeys[sortKey] {
		return nil, model.NewInvalidSortError(string(sortKey))
	}

	canonical := state.Canonical()
	opts := Options{ExcludeIrrelevant: view != ViewList}

	snap := s.store.Snapshot()

	var filtered []model.Post
	// デフォルト条件のギャラリービューはストアの再計算済みビューをそのまま使う
	if canonical.IsZero() && snap.Filter.IsZero() && sortKey == snap.Sort && view != ViewList {
		filtered = snap.Filtered
	} else {
		filtered = Sort(Filter(snap.Posts, canonical, opts), sortKey)
	}

	page := Page(filtered, offset, limit)
	return &ListResult{
		Items:   page.Items,
		Total:   len(filtered),
		HasMore: page.HasMore,
	}, nil
}

// CriticalResult は重要投稿クエリの結果。
type CriticalResult struct {
	Items []model.Post
	Total int // ソート済みリストの総件数（"N of M" 表示用）
}

// CriticalPosts は重要投稿ドロワー向けのランキングを返す。
// limitが正の場合は先頭limit件に切り詰めるが、Totalには全件数を保持する。
func (s *Service) CriticalPosts(q CriticalQuery, limit int) *CriticalResult {
	snap := s.store.Snapshot()
	ranked := Critical(snap.Posts, q, s.now())

	total := len(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return &CriticalResult{Items: ranked, Total: total}
}

// AnsweredStats は回答状況の集計。
type AnsweredStats struct {
	Answered           int
	NotAnswered        int
	Total              int
	AnsweredPercentage float64
}

// Stats は回答状況の統計を返す。サンプル投稿は集計から除外する。
func (s *Service) Stats() AnsweredStats {
	snap := s.store.Snapshot()

	var stats AnsweredStats
	for _, p := range snap.Posts {
		if IsSampleURL(p.URL) {
			continue
		}
		stats.Total++
		if p.IsAnswered {
			stats.Answered++
		} else {
			stats.NotAnswered++
		}
	}
	if stats.Total > 0 {
		stats.AnsweredPercentage = float64(stats.Answered) / float64(stats.Total) * 100
	}
	return stats
}
