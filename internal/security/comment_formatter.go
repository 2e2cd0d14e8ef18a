// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentFormatterService は投稿者・サイトオーナーが入力したテキストを
// 静的サイトに埋め込んでも安全な制限付きHTMLへ変換する。
// bluemondayライブラリを使用した許可リストベースのポリシーが
// 埋め込みマークアップに対する唯一のセキュリティ境界となる。
package security

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// CommentFormatterService はコメント整形機能のインターフェースを定義する。
// コメント本文とオーナー返信の両方に無条件で適用される。
// サニタイズ済み以外の形の本文を永続化・再表示するコードパスは存在しない。
type CommentFormatterService interface {
	// FormatComment はMarkdownテキストをHTMLへ変換し、許可リストで
	// サニタイズした結果を返す。見出しと画像は許可リスト外のため
	// タグが除去される（テキスト内容は残る）。
	FormatComment(raw string) string

	// SanitizeHTML は任意のHTMLを許可リストでサニタイズする。
	// Webmentionの言及元から抽出した抜粋に使用する。
	// 冪等であり、サニタイズ済みHTMLを再度通しても出力は変わらない。
	SanitizeHTML(rawHTML string) string
}

// commentFormatter はCommentFormatterServiceの実装。
// goldmarkのレンダラとbluemondayのポリシーを保持し、スレッドセーフに動作する。
type commentFormatter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewCommentFormatter はCommentFormatterServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, pre, a, abbr, acronym, b, blockquote, code,
//     em, i, li, ol, strong, ul（安全なインライン整形のみ）
//   - aタグ: href属性のみ許可。URLスキームはmailto/http/httpsに限定され、
//     全リンクにrel="nofollow"が強制付与される
//   - script, iframe, style, img, 見出しタグおよびon*イベント属性は
//     許可リストに含まれないため除去される
func NewCommentFormatter() *commentFormatter {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "pre",
		"a", "abbr", "acronym", "b", "blockquote", "code",
		"em", "i", "li", "ol", "strong", "ul",
	)

	// リンクはhref属性のみ。AllowStandardURLsがmailto/http/httpsへの
	// スキーム制限と相対URLの検証を行う。
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)

	return &commentFormatter{
		md:     goldmark.New(),
		policy: p,
	}
}

// FormatComment はMarkdownテキストを制限付きHTMLへ変換する。
// Markdownの変換に失敗した場合は入力をプレーンテキストとして扱い、
// サニタイズのみを適用する（未サニタイズの内容が返ることはない）。
func (f *commentFormatter) FormatComment(raw string) string {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(raw), &buf); err != nil {
		return f.policy.Sanitize(raw)
	}
	return f.policy.Sanitize(buf.String())
}

// SanitizeHTML はHTMLを許可リストでサニタイズする。
func (f *commentFormatter) SanitizeHTML(rawHTML string) string {
	return f.policy.Sanitize(rawHTML)
}
