// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はLLMが生成した応答に含まれるHTMLをサニタイズし、
// チャットUIに表示した際のXSS攻撃からユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// Markdownレンダリングで一般的なタグのみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はLLM応答のサニタイズ機能のインターフェースを定義する。
// 応答の履歴保存前およびAPI応答時に使用される。
type ContentSanitizerService interface {
	// Sanitize は応答テキストに含まれるHTMLをサニタイズして返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em,
	// h1〜h4, table, thead, tbody, tr, th, td）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグのhrefはhttpsスキームのみ許可され、
	// target="_blank"とrel="noopener noreferrer"が自動付与される。
	// プレーンテキストはそのまま通過する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(response string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// コンパイル時のインターフェース実装チェック
var _ ContentSanitizerService = (*contentSanitizer)(nil)

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// LLM応答はMarkdownとしてレンダリングされる前提のため、
// 見出しと表を含むMarkdown由来のタグを許可する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// 許可タグの設定（属性なしのシンプルなタグ）
	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"h1", "h2", "h3", "h4",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	// aタグの設定:
	// - href属性を許可（httpsのみ）
	// - 相対URLは不許可（LLM応答内のリンクには不適切）
	// - target="_blank"を全リンクに強制付与
	// - rel="noreferrer noopener"を強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize は応答テキストに含まれるHTMLをサニタイズして返す。
func (s *contentSanitizer) Sanitize(response string) string {
	return s.policy.Sanitize(response)
}
