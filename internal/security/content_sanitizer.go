package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// スクレイパーバックエンドから取り込んだ投稿本文に対して使用される。
// 投稿はソーシャルメディア由来の信頼できないHTMLを含みうるため、
// 取込時に必ずサニタイズしてからストアに格納する。
type ContentSanitizerService interface {
	// Sanitize は投稿本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, blockquote, code, strong, em）のみを通過させ、
	// script, iframe, style, imgタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, blockquote, code, strong, em
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noreferrer noopener" を自動付与、相対URL不許可
//
// 投稿カードはテキスト中心の表示のためimgは許可しない。
// 外部画像の埋め込みはトラッキングピクセルの温床になる。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されない
	p.AllowElements(
		"p", "br",
		"blockquote", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize は投稿本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
