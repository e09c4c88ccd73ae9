package post

import (
	"math"
	"sort"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// CriticalMode は重要投稿ランカーのソートモード。
type CriticalMode string

const (
	// CriticalModeScore はスコア優先のソート。
	// sentiment=negativeの場合はより負のスコアが先頭、
	// それ以外は絶対値の大きいスコアが先頭。同点は新しい順。
	CriticalModeScore CriticalMode = "score"
	// CriticalModeRecent は日付優先のソート。スコア規則は第2キー。
	CriticalModeRecent CriticalMode = "recent"
)

// CriticalQuery は重要投稿ランカーの検索条件。
type CriticalQuery struct {
	// Sentiment は対象センチメント。空文字列は全件（"all"相当）。
	Sentiment string
	// PeriodDays は対象期間（暦日単位、今日からPeriodDays日前まで）。
	PeriodDays int
	// Search はフリーテキスト検索（フィルタパイプラインの検索段と同一規則）。
	Search string
	// Mode はソートモード。未指定はCriticalModeScore。
	Mode CriticalMode
}

// Critical は重要投稿ドロワー向けの期間・センチメント・検索フィルタと
// 専用ソートを適用した新しいスライスを返す。リスト全体を返し、
// 表示上限（50件）の切り出しは呼び出し側の責務とする。
func Critical(posts []model.Post, q CriticalQuery, now time.Time) []model.Post {
	today := truncateDay(now)
	cutoff := today.AddDate(0, 0, -q.PeriodDays)

	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if IsSampleURL(p.URL) {
			continue
		}
		// 期間フィルタ: 日付条件付きビューなので日付なしは除外
		if q.PeriodDays > 0 {
			if !p.HasDate() || p.Day().Before(cutoff) {
				continue
			}
		}
		if q.Sentiment != "" && string(p.SentimentLabel) != q.Sentiment {
			continue
		}
		if !matchesSearch(p, q.Search) {
			continue
		}
		out = append(out, p)
	}

	scoreLess, scoreEqual := criticalScoreOrder(q.Sentiment)

	switch q.Mode {
	case CriticalModeRecent:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.HasDate() != b.HasDate() || !a.CreatedAt.Equal(b.CreatedAt) {
				return dateDesc(a, b)
			}
			return scoreLess(a, b)
		})
	default:
		// 同点判定は比較と同じ実効キーで行う。絶対値比較のビューでは
		// -0.5と+0.5は同点であり、日付の新しい順に倒す。
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !scoreEqual(a, b) {
				return scoreLess(a, b)
			}
			return dateDesc(a, b)
		})
	}

	return out
}

// criticalScoreOrder はセンチメントフィルタに応じたスコア比較と
// 同点判定の組を返す。negativeビューでは数値の小さい（より負の）スコアが
// 重要、それ以外のビューでは絶対値の大きいスコアが重要。
func criticalScoreOrder(sentiment string) (less, equal func(a, b model.Post) bool) {
	if sentiment == string(model.SentimentNegative) {
		return func(a, b model.Post) bool {
				return a.SentimentScore < b.SentimentScore
			}, func(a, b model.Post) bool {
				return a.SentimentScore == b.SentimentScore
			}
	}
	return func(a, b model.Post) bool {
			return math.Abs(a.SentimentScore) > math.Abs(b.SentimentScore)
		}, func(a, b model.Post) bool {
			return math.Abs(a.SentimentScore) == math.Abs(b.SentimentScore)
		}
}
