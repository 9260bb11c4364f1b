// Package security はリモート通信とユーザー入力に関するセキュリティ機能を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizer はメモ本文のHTMLを許可リストでサニタイズする。
// リモートへの書き込み前に適用し、ローカルストアには常にサニタイズ済みHTMLが入る。
type NoteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerを生成する。
//   - 許可タグ: p, br, ul, ol, li, blockquote, pre, code, strong, em, h1〜h3, a
//   - aのhrefはhttp/https/mailtoのみ。外部リンクには target="_blank" と rel="noopener noreferrer" を付与
//   - script, style, iframe, on*属性は除去
func NewNoteSanitizer() *NoteSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h1", "h2", "h3",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &NoteSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。前後の空白は取り除く。
// 同一入力に対して常に同一出力を返す。
func (s *NoteSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
