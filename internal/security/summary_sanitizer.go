// Package security はフィード取得まわりのセキュリティ機能を提供する。
//
// SummarySanitizerService はフィード記事のサマリーHTMLをサニタイズし、
// XSS攻撃などのセキュリティリスクから表示層を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// SummarySanitizerService はHTMLサマリーのサニタイズ機能のインターフェースを定義する。
// 記事の保存前に使用される。
type SummarySanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// scriptタグ、iframeタグ、on*イベント属性などを除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// summarySanitizer はSummarySanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はSummarySanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, b, i
//   - aタグ: href属性を許可し、rel="nofollow noreferrer"を強制付与
//   - script, iframe, style および全てのon*イベント属性は除去される
func NewSummarySanitizer() *summarySanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &summarySanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *summarySanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
