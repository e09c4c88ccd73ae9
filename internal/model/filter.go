// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// FilterState は投稿一覧の現在のフィルタ条件を表すフラットなレコード。
//
// 文字列フィールドは空文字列が「条件なし」を意味する。元のダッシュボードは
// "all"と空文字列のセンチネルが混在していたため、HTTP境界でCanonicalを
// 通して空文字列に統一し、パイプライン内では"all"を扱わない。
// 日付フィールドはゼロ値が「条件なし」を意味する。
type FilterState struct {
	Search    string
	Sentiment string // "positive" | "negative" | "neutral" | ""
	Language  string
	Product   string
	Source    string
	Answered  string // "1"=回答済みのみ | "0"=未回答のみ | ""=全件
	DateFrom  time.Time
	DateTo    time.Time
}

// Canonical は"all"センチネルを空文字列に正規化したコピーを返す。
// 大文字小文字は区別しない。SearchとDateFrom/DateToはそのまま保持する。
func (f FilterState) Canonical() FilterState {
	f.Sentiment = canonicalValue(f.Sentiment)
	f.Language = canonicalValue(f.Language)
	f.Product = canonicalValue(f.Product)
	f.Source = canonicalValue(f.Source)
	f.Answered = canonicalValue(f.Answered)
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// IsZero は全フィールドが「条件なし」かどうかを返す。
func (f FilterState) IsZero() bool {
	return f.Search == "" && f.Sentiment == "" && f.Language == "" &&
		f.Product == "" && f.Source == "" && f.Answered == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero()
}

// canonicalValue は"all"（大文字小文字不問）と空白のみの値を空文字列に落とす。
func canonicalValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

// SortKey は投稿一覧のソート戦略を表す。
type SortKey string

const (
	// SortDateDesc は作成日時の新しい順。
	SortDateDesc SortKey = "date-desc"
	// SortDateAsc は作成日時の古い順。
	SortDateAsc SortKey = "date-asc"
	// SortSentimentDesc はセンチメントスコアの昇順。
	// 歴史的経緯で"desc"がスコア昇順を指す。英語の直感と逆だが挙動を保存する。
	SortSentimentDesc SortKey = "sentiment-desc"
	// SortSentimentAsc はセンチメントスコアの降順。SortSentimentDescの逆。
	SortSentimentAsc SortKey = "sentiment-asc"
	// SortRelevancyDesc は関連度スコアの高い順。同点は日付の新しい順。
	SortRelevancyDesc SortKey = "relevancy-desc"
	// SortRelevancyAsc は関連度スコアの低い順。同点は日付の新しい順。
	SortRelevancyAsc SortKey = "relevancy-asc"
	// SortSourceAsc はソース名の辞書順（昇順）。
	SortSourceAsc SortKey = "source-asc"
	// SortSourceDesc はソース名の辞書順（降順）。
	SortSourceDesc SortKey = "source-desc"
	// SortCritical はネガティブ投稿を日付に関係なく先頭に置く複合ソート。
	// 同一センチメント区分内では新しい順。
	SortCritical SortKey = "critical"
	// SortEngagement はエンゲージメント合計の多い順。同点は日付の新しい順。
	SortEngagement SortKey = "engagement"
)

// ValidSortKeys は有効なソートキーのセット。
var ValidSortKeys = map[SortKey]bool{
	SortDateDesc:      true,
	SortDateAsc:       true,
	SortSentimentDesc: true,
	SortSentimentAsc:  true,
	SortRelevancyDesc: true,
	SortRelevancyAsc:  true,
	SortSourceAsc:     true,
	SortSourceDesc:    true,
	SortCritical:      true,
	SortEngagement:    true,
}

// DefaultSortKey は未指定時のソートキー。
const DefaultSortKey = SortDateDesc
