// Package relevance はブランド関連度スコアの算出を提供する。
//
// スコアはML推論ではなく、ブランド・経営陣・製品キーワードの
// 重み付きヒューリスティックで算出する0〜1の値。バックエンドが
// relevance_scoreを提供している場合（>0）はその値を確定値として優先する。
package relevance

import (
	"math"
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/brandpulse/internal/model"
)

// Weights は関連度スコアの重みテーブル。
type Weights struct {
	// BrandContent は本文中のブランド言及の最大寄与。
	BrandContent float64
	// BrandURL はURL中のブランド言及の固定寄与。
	BrandURL float64
	// Leadership はブランド言及ありの場合の経営陣言及の最大寄与。
	Leadership float64
	// LeadershipSolo はブランド言及なしの場合の経営陣言及の最大寄与。
	LeadershipSolo float64
	// Product はブランド言及ありの場合のみ加算される製品キーワードの最大寄与。
	Product float64
}

// DefaultWeights は正準の重みテーブル。
var DefaultWeights = Weights{
	BrandContent:   0.35,
	BrandURL:       0.25,
	Leadership:     0.20,
	LeadershipSolo: 0.10,
	Product:        0.20,
}

// LegacyWeights は旧ダッシュボードに残っていたもう一つの重みテーブル。
// DefaultWeightsとの乖離は既知の問題であり、新規コードでは使用しないこと。
// 旧実装のスコアを再現する必要がある場合のためにのみ残している。
var LegacyWeights = Weights{
	BrandContent:   0.40,
	BrandURL:       0.30,
	Leadership:     0.20,
	LeadershipSolo: 0.10,
	Product:        0.10,
}

// brandFloorScore はブランド言及がある投稿に保証される最低スコア。
const brandFloorScore = 0.2

// brandKeywords は本文・URLに対して大文字小文字を無視した部分一致で
// 照合するブランド名のリスト。
var brandKeywords = []string{
	"ovh",
	"ovhcloud",
	"kimsufi",
	"soyoustart",
}

// leadershipKeywords は経営陣の個人名および役職フレーズのリスト。
// 本文とauthorの両方に対して照合する。
var leadershipKeywords = []string{
	"octave klaba",
	"klaba",
	"michel paulin",
	"ceo",
	"founder",
	"chairman",
}

// productKeywords は製品キーワードから表示ラベルへの対応。
// スコア算出とgetProductLabel相当の製品ラベル導出の両方で使用する。
var productKeywords = []struct {
	keyword string
	label   string
}{
	{"dedicated server", "Dedicated Servers"},
	{"object storage", "Object Storage"},
	{"kubernetes", "Managed Kubernetes"},
	{"hosting", "Web Hosting"},
	{"vps", "VPS"},
	{"domain", "Domains"},
	{"cloud", "Public Cloud"},
	{"email", "Email"},
}

// Scorer は関連度スコアの算出器。
type Scorer struct {
	weights Weights
}

// NewScorer は指定された重みテーブルのScorerを生成する。
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// NewDefaultScorer は正準の重みテーブルのScorerを生成する。
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultWeights)
}

// Score は投稿の関連度スコアを0〜1で返す。
//
// バックエンド提供のrelevance_scoreが正の場合はその値を確定値として返す。
// それ以外は4つの独立シグナル（本文ブランド言及、URLブランド言及、
// 経営陣言及、製品キーワード）の重み付き和を1.0でキャップして返す。
// スコアが0でもブランド言及が存在する場合は0.2を下限として保証する。
func (s *Scorer) Score(p model.Post) float64 {
	// 確定値の短絡: バックエンドが算出済みの場合はそれを優先する
	if p.RelevanceScore > 0 {
		return math.Min(p.RelevanceScore, 1.0)
	}

	// 本文・URL・authorがすべて空の投稿は無条件に0
	if p.Content == "" && p.URL == "" && p.Author == "" {
		return 0.0
	}

	content := strings.ToLower(StripHTML(p.Content))
	urlLower := strings.ToLower(p.URL)
	author := strings.ToLower(p.Author)

	brandMatches := countMatches(content, brandKeywords)
	brandInURL := containsAny(urlLower, brandKeywords)

	var score float64

	// 本文中のブランド言及: min(matches/2, 1.0) でスケール
	if brandMatches > 0 {
		score += s.weights.BrandContent * math.Min(float64(brandMatches)/2.0, 1.0)
	}

	// URL中のブランド言及: 固定寄与
	if brandInURL {
		score += s.weights.BrandURL
	}

	// 経営陣言及: 1件ごとに0.1、重み付け前に1.0でキャップ。
	// ブランド言及がない場合は寄与上限が半分（LeadershipSolo）になる。
	leadMatches := countMatches(content, leadershipKeywords) + countMatches(author, leadershipKeywords)
	if leadMatches > 0 {
		factor := math.Min(0.1*float64(leadMatches), 1.0)
		if brandMatches > 0 {
			score += s.weights.Leadership * factor
		} else {
			score += s.weights.LeadershipSolo * factor
		}
	}

	// 製品キーワード: ブランド言及がある場合のみ min(matches/3, 1.0) でスケール
	if brandMatches > 0 {
		prodMatches := 0
		for _, pk := range productKeywords {
			if strings.Contains(content, pk.keyword) {
				prodMatches++
			}
		}
		if prodMatches > 0 {
			score += s.weights.Product * math.Min(float64(prodMatches)/3.0, 1.0)
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	// 下限保証: ブランド言及のある投稿が0点になることはない
	if score == 0 && (brandMatches > 0 || brandInURL) {
		return brandFloorScore
	}

	return score
}

// Annotate は投稿列に導出フィールド（関連度スコアと製品ラベル）を設定した
// 新しいスライスを返す。入力は変更しない。
func (s *Scorer) Annotate(posts []model.Post) []model.Post {
	out := make([]model.Post, len(posts))
	for i, p := range posts {
		p.RelevanceScore = s.Score(p)
		if p.Product == "" {
			p.Product = ProductLabel(p.Content)
		}
		out[i] = p
	}
	return out
}

// ProductLabel は本文から製品表示ラベルを導出する。
// 最初に一致した製品キーワードのラベルを返し、該当なしは空文字列を返す。
func ProductLabel(content string) string {
	if content == "" {
		return ""
	}
	text := strings.ToLower(StripHTML(content))
	for _, pk := range productKeywords {
		if strings.Contains(text, pk.keyword) {
			return pk.label
		}
	}
	return ""
}

// countMatches はtext中に出現するキーワードの種類数を返す。
// 同一キーワードの複数回出現は1回として数える。
func countMatches(text string, keywords []string) int {
	if text == "" {
		return 0
	}
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

// containsAny はtextにいずれかのキーワードが含まれるかを返す。
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// StripHTML はHTML断片からテキストノードのみを抽出して連結する。
// タグを含まない入力はそのまま返す。パースはhtml.Tokenizerの
// エラー終端（io.EOF相当）まで読み切るため失敗しない。
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.Write(tokenizer.Text())
		}
	}
	return strings.TrimSpace(b.String())
}
