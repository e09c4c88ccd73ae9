package post

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hitoshi/brandpulse/internal/model"
)

// Sort は投稿列を指定戦略で安定ソートした新しいスライスを返す。
// 入力スライスは変更しない。未知のキーはDefaultSortKeyとして扱う。
//
// 日付を持たない投稿は方向に関係なく常に末尾に置かれる
// （不正な日付は「最低優先度」として扱う）。
func Sort(posts []model.Post, key model.SortKey) []model.Post {
	out := make([]model.Post, len(posts))
	copy(out, posts)

	less := lessFunc(key)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

// lessFunc はソートキーに対応する比較関数を返す。
func lessFunc(key model.SortKey) func(a, b model.Post) bool {
	switch key {
	case model.SortDateAsc:
		return dateAsc
	case model.SortSentimentDesc:
		// 歴史的経緯: "sentiment-desc" はスコア昇順。挙動を保存する
		return func(a, b model.Post) bool { return a.SentimentScore < b.SentimentScore }
	case model.SortSentimentAsc:
		return func(a, b model.Post) bool { return a.SentimentScore > b.SentimentScore }
	case model.SortRelevancyDesc:
		return func(a, b model.Post) bool {
			if a.RelevanceScore != b.RelevanceScore {
				return a.RelevanceScore > b.RelevanceScore
			}
			return dateDesc(a, b)
		}
	case model.SortRelevancyAsc:
		return func(a, b model.Post) bool {
			if a.RelevanceScore != b.RelevanceScore {
				return a.RelevanceScore < b.RelevanceScore
			}
			return dateDesc(a, b)
		}
	case model.SortSourceAsc:
		c := newSourceCollator()
		return func(a, b model.Post) bool { return c.CompareString(a.Source, b.Source) < 0 }
	case model.SortSourceDesc:
		c := newSourceCollator()
		return func(a, b model.Post) bool { return c.CompareString(a.Source, b.Source) > 0 }
	case model.SortCritical:
		return criticalLess
	case model.SortEngagement:
		return func(a, b model.Post) bool {
			if a.Engagement() != b.Engagement() {
				return a.Engagement() > b.Engagement()
			}
			return dateDesc(a, b)
		}
	case model.SortDateDesc:
		return dateDesc
	default:
		return dateDesc
	}
}

// newSourceCollator はソース名比較用の照合器を生成する。
// collate.Collatorは内部バッファを持ち並行利用できないため、
// ソートごとに生成する。
func newSourceCollator() *collate.Collator {
	return collate.New(language.Und)
}

// dateDesc は新しい順の比較。日付なしは末尾。
func dateDesc(a, b model.Post) bool {
	if a.HasDate() != b.HasDate() {
		return a.HasDate()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// dateAsc は古い順の比較。日付なしは末尾。
func dateAsc(a, b model.Post) bool {
	if a.HasDate() != b.HasDate() {
		return a.HasDate()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// criticalLess はネガティブ投稿を日付に関係なく先頭に置き、
// 同一センチメント区分内では新しい順に並べる複合比較。
func criticalLess(a, b model.Post) bool {
	aNeg := a.SentimentLabel == model.SentimentNegative
	bNeg := b.SentimentLabel == model.SentimentNegative
	if aNeg != bNeg {
		return aNeg
	}
	return dateDesc(a, b)
}
