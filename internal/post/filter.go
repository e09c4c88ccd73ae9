// Package post は投稿のフィルタリング・ソート・ページネーションの
// パイプラインを提供する。パイプラインの各段は純粋関数であり、
// 任意のPost値に対してpanicもエラーも発生させない。
package post

import (
	"strings"

	"github.com/hitoshi/brandpulse/internal/model"
)

// Options はフィルタパイプラインのビュー依存の挙動を制御する。
type Options struct {
	// ExcludeIrrelevant は関連度スコアが0の投稿を除外する（ギャラリービュー）。
	// 旧ドロワービューでは無効にする。
	ExcludeIrrelevant bool
}

// samplePatterns はシード/テストフィクスチャとして除外するURLパターン。
// これらに一致する投稿はいかなるフィルタ構成でもユーザーに届いてはならない。
var samplePatterns = []string{
	"/sample",
	"example.com",
	"/status/174",
}

// sampleExactURLs は完全一致で除外するURL。
var sampleExactURLs = []string{
	"https://trustpilot.com/sample",
}

// Filter は投稿列にフィルタ条件を適用した新しいスライスを返す。
// 全段がANDで結合され、入力順を保存する。純粋関数であり冪等:
// 同じFilterStateを2回適用しても結果は変わらない。
//
// stateはCanonical済みであることを前提とする（"all"センチネルは扱わない）。
func Filter(posts []model.Post, state model.FilterState, opts Options) []model.Post {
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if Matches(p, state, opts) {
			out = append(out, p)
		}
	}
	return out
}

// Matches は単一の投稿がフィルタ条件を満たすかを判定する。
func Matches(p model.Post, state model.FilterState, opts Options) bool {
	// 1. サンプル除外: フィクスチャURLは無条件で落とす
	if IsSampleURL(p.URL) {
		return false
	}

	// 2. 関連度除外（ギャラリービューのみ）
	if opts.ExcludeIrrelevant && p.RelevanceScore == 0 {
		return false
	}

	// 3. フリーテキスト検索: いずれかのフィールドに部分一致すれば残す
	if !matchesSearch(p, state.Search) {
		return false
	}

	// 4. センチメント
	if state.Sentiment != "" && string(p.SentimentLabel) != state.Sentiment {
		return false
	}

	// 5. ソース: エイリアス正規化後に比較（正規化前の値との一致も許容）
	if state.Source != "" {
		normalized := NormalizeSource(p.Source)
		if normalized != state.Source && p.Source != state.Source {
			return false
		}
	}

	// 6. 言語
	if state.Language != "" && !strings.EqualFold(p.Language, state.Language) {
		return false
	}

	// 7. 製品ラベル
	if state.Product != "" && !strings.EqualFold(p.Product, state.Product) {
		return false
	}

	// 8. 回答状態（三値）
	switch state.Answered {
	case "1":
		if !p.IsAnswered {
			return false
		}
	case "0":
		if p.IsAnswered {
			return false
		}
	}

	// 9. 日付範囲: 暦日単位の包含比較。
	// 日付境界が指定されている場合、日付を持たない投稿は除外する。
	if !state.DateFrom.IsZero() || !state.DateTo.IsZero() {
		if !p.HasDate() {
			return false
		}
		day := p.Day()
		if !state.DateFrom.IsZero() && day.Before(truncateDay(state.DateFrom)) {
			return false
		}
		if !state.DateTo.IsZero() && day.After(truncateDay(state.DateTo)) {
			return false
		}
	}

	return true
}

// IsSampleURL はURLが既知のプレースホルダパターンに一致するかを返す。
func IsSampleURL(url string) bool {
	if url == "" {
		return false
	}
	for _, exact := range sampleExactURLs {
		if url == exact {
			return true
		}
	}
	for _, pattern := range samplePatterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}

// matchesSearch は検索文字列がcontent/author/url/source/製品ラベルの
// いずれかに大文字小文字を無視して部分一致するかを返す。
func matchesSearch(p model.Post, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	fields := []string{p.Content, p.Author, p.URL, p.Source, p.Product}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
