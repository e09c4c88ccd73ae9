// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Sentiment は投稿のセンチメント分類を表す。
type Sentiment string

const (
	// SentimentPositive はポジティブな投稿。
	SentimentPositive Sentiment = "positive"
	// SentimentNegative はネガティブな投稿。
	SentimentNegative Sentiment = "negative"
	// SentimentNeutral はニュートラルな投稿。ラベル未付与の投稿もneutral扱いとする。
	SentimentNeutral Sentiment = "neutral"
)

// NormalizeSentiment はバックエンドから受け取ったラベル文字列をSentimentに正規化する。
// 空文字列や未知の値はneutralとして扱う。
func NormalizeSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive
	case "negative":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Post はスクレイパーバックエンドから取得したSNS/レビュー投稿を表す。
// フィールドのデフォルト処理はUnmarshalJSONに集約し、
// 利用側でのnilチェックや型の揺れの吸収を不要にする。
type Post struct {
	ID             int64
	Content        string
	URL            string
	Author         string
	Source         string // プラットフォーム表示名（例: "GitHub Issues"）
	Language       string // ISO風コードまたは"unknown"
	CreatedAt      time.Time // パース不能な場合はゼロ値
	SentimentLabel Sentiment
	SentimentScore float64
	RelevanceScore float64 // バックエンド提供値（>0で確定値）、なければ取込時に算出して設定する
	Product        string  // 取込時に導出される製品ラベル。該当なしは空文字列
	IsAnswered     bool
	Views          int
	Comments       int
	Reactions      int
}

// postJSON はバックエンドAPIのJSON表現。型の揺れを許容する中間形。
type postJSON struct {
	ID             int64       `json:"id"`
	Content        string      `json:"content"`
	URL            string      `json:"url"`
	Author         string      `json:"author"`
	Source         string      `json:"source"`
	Language       string      `json:"language"`
	CreatedAt      string      `json:"created_at"`
	SentimentLabel string      `json:"sentiment_label"`
	SentimentScore flexFloat   `json:"sentiment_score"`
	RelevanceScore flexFloat   `json:"relevance_score"`
	Product        string      `json:"product"`
	IsAnswered     flexBool    `json:"is_answered"`
	Views          flexInt     `json:"views"`
	Comments       flexInt     `json:"comments"`
	Reactions      flexInt     `json:"reactions"`
}

// createdAtLayouts はcreated_atとして許容するタイムスタンプ形式。
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreatedAt はタイムスタンプ文字列をUTCのtime.Timeにパースする。
// どの形式にも一致しない場合はゼロ値を返す（エラーにはしない）。
func ParseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// UnmarshalJSON はバックエンドの投稿JSONをデフォルト処理付きでデコードする。
//   - sentiment_label 欠落/未知 → neutral
//   - is_answered は 0/1/true/false/"1"/"0"/"true"/"false" を許容
//   - created_at はパース不能ならゼロ値（日付条件付きビューからのみ除外される）
//   - 数値フィールドは数値文字列も許容し、不正値は0に落とす
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw postJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.ID = raw.ID
	p.Content = raw.Content
	p.URL = raw.URL
	p.Author = raw.Author
	p.Source = raw.Source
	p.Language = raw.Language
	if p.Language == "" {
		p.Language = "unknown"
	}
	p.CreatedAt = ParseCreatedAt(raw.CreatedAt)
	p.SentimentLabel = NormalizeSentiment(raw.SentimentLabel)
	p.SentimentScore = float64(raw.SentimentScore)
	p.RelevanceScore = float64(raw.RelevanceScore)
	p.Product = raw.Product
	p.IsAnswered = bool(raw.IsAnswered)
	p.Views = int(raw.Views)
	p.Comments = int(raw.Comments)
	p.Reactions = int(raw.Reactions)

	return nil
}

// HasDate は投稿が有効な作成日時を持つかを返す。
func (p Post) HasDate() bool {
	return !p.CreatedAt.IsZero()
}

// Day は作成日時をUTCの暦日（00:00:00）に切り詰めて返す。
// 日付範囲フィルタは暦日単位の包含比較で行う。
func (p Post) Day() time.Time {
	return p.CreatedAt.UTC().Truncate(24 * time.Hour)
}

// Engagement はエンゲージメント合計（閲覧+コメント+リアクション）を返す。
func (p Post) Engagement() int {
	return p.Views + p.Comments + p.Reactions
}

// flexBool はJSON上のbool/数値/文字列をboolとして受け付ける。
// バックエンドのis_answeredは 0/1/true/"1" が混在して返ってくる。
type flexBool bool

// UnmarshalJSON はflexBoolをデコードする。不正値はfalseに落とす。
func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "":
		*b = false
		return nil
	case "true":
		*b = true
		return nil
	case "false":
		*b = false
		return nil
	}
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(s) {
	case "1", "true":
		*b = true
	default:
		if f, err := strconv.ParseFloat(s, 64); err == nil && f != 0 {
			*b = true
		} else {
			*b = false
		}
	}
	return nil
}

// flexFloat はJSON上の数値/数値文字列/nullをfloat64として受け付ける。
// 数値にできない値は0に落とす（不正値は最低優先度として扱う）。
type flexFloat float64

// UnmarshalJSON はflexFloatをデコードする。
func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" || len(data) == 0 {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexInt はJSON上の数値/数値文字列/nullをintとして受け付ける。
type flexInt int

// UnmarshalJSON はflexIntをデコードする。
func (i *flexInt) UnmarshalJSON(data []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = flexInt(f)
	return nil
}
