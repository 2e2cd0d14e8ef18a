// Package mention はWebmentionの言及元ページの検証を提供する。
//
// 言及元URLは投稿者が自由に指定できる未信頼の入力であるため、
// フェッチは必ずSSRFガード付きのHTTPクライアントで行う。
// 検証結果はキューレコードには永続化されず、レビュー表示と承認時の
// 公開内容の組み立てのたびに再検証して得る。
package mention

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/commentq/internal/model"
	"github.com/hitoshi/commentq/internal/security"
	"golang.org/x/net/html"
)

const (
	// excerptIdealLength は抜粋の目標文字数。
	excerptIdealLength = 2000
	// excerptMaxLength は抜粋の上限文字数。
	excerptMaxLength = 2500
)

// sentenceBreakPattern は抜粋を打ち切る位置の候補。
var sentenceBreakPattern = regexp.MustCompile(`[.?!<]`)

// Sanitizer は抜粋HTMLのサニタイズのインターフェース。
type Sanitizer interface {
	SanitizeHTML(rawHTML string) string
}

// Verification は言及元ページの検証結果を表す。
type Verification struct {
	// Web は言及元を代表するURL（canonicalが同一オリジンならcanonical）。
	Web string
	// Title は言及元ページのタイトル。
	Title string
	// AuthorName は言及元ページの著者名（meta author、なければ空）。
	AuthorName string
	// ExcerptHTML はサニタイズ・切り詰め済みの抜粋。
	ExcerptHTML string
}

// Verifier は言及元ページを取得して対象記事へのリンクを検証する。
type Verifier struct {
	guard     security.SSRFGuardService
	sanitizer Sanitizer
	logger    *slog.Logger
	baseURL   string
	timeout   time.Duration
	maxSize   int64
}

// NewVerifier はVerifierを生成する。
func NewVerifier(
	guard security.SSRFGuardService,
	sanitizer Sanitizer,
	logger *slog.Logger,
	baseURL string,
	timeout time.Duration,
	maxSize int64,
) *Verifier {
	return &Verifier{
		guard:     guard,
		sanitizer: sanitizer,
		logger:    logger,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Verify は言及元ページを取得し、対象記事へのリンクが存在することを検証する。
// リンクが見つからない場合はエラーを返す。見つかった場合はページから
// タイトル・著者・抜粋などの表示用メタデータを抽出して返す。
func (v *Verifier) Verify(ctx context.Context, rec *model.PendingComment) (*Verification, error) {
	if err := v.guard.ValidateURL(rec.SourceURL); err != nil {
		return nil, fmt.Errorf("source URL rejected: %w", err)
	}

	body, err := v.fetch(ctx, rec.SourceURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse source page: %w", err)
	}

	meta := collectPageMeta(doc)

	expected := v.baseURL + rec.PostURI
	if !meta.links[expected] {
		return nil, fmt.Errorf("link to %s not found on source page", expected)
	}

	ver := &Verification{
		Title:      meta.title,
		AuthorName: meta.author,
	}

	// canonicalが言及元と同一オリジンの場合のみ代表URLとして採用する
	ver.Web = rec.SourceURL
	if meta.canonical != "" && sameOrigin(meta.canonical, rec.SourceURL) {
		ver.Web = meta.canonical
	}

	if meta.description != "" {
		excerpt := v.sanitizer.SanitizeHTML(trimExcerpt(meta.description, excerptIdealLength, excerptMaxLength))
		if strings.HasSuffix(excerpt, "…") {
			excerpt += fmt.Sprintf(` <a href="%s">more</a>`, ver.Web)
		}
		ver.ExcerptHTML = excerpt
	}

	return ver, nil
}

// fetch はSSRFガード付きクライアントで言及元ページを取得する。
// text/html以外のレスポンスは拒否し、本文はmaxSizeまでしか読まない。
func (v *Verifier) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	client := v.guard.NewSafeClient(v.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Webmention verification")

	resp, err := client.Do(req)
	if err != nil {
		v.logger.Warn("failed to fetch mention source",
			slog.String("source", sourceURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to fetch source page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source page returned status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		return nil, fmt.Errorf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, v.maxSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read source page: %w", err)
	}
	return body, nil
}

// pageMeta は言及元ページから抽出したメタデータ。
type pageMeta struct {
	links       map[string]bool // aタグのhref値の集合
	title       string          // og:title優先、なければ<title>
	plainTitle  string
	ogTitle     string
	author      string
	canonical   string
	description string
	ogDesc      string
}

// collectPageMeta はDOMツリーを走査してリンクとメタデータを収集する。
func collectPageMeta(doc *html.Node) *pageMeta {
	meta := &pageMeta{links: make(map[string]bool)}
	walk(doc, meta)

	meta.title = meta.ogTitle
	if meta.title == "" {
		meta.title = meta.plainTitle
	}
	if meta.description == "" {
		meta.description = meta.ogDesc
	}
	return meta
}

func walk(n *html.Node, meta *pageMeta) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "a":
			if href := attrValue(n, "href"); href != "" {
				meta.links[href] = true
			}
		case "title":
			if meta.plainTitle == "" {
				meta.plainTitle = strings.TrimSpace(textContent(n))
			}
		case "link":
			if strings.EqualFold(attrValue(n, "rel"), "canonical") {
				meta.canonical = strings.TrimSpace(attrValue(n, "href"))
			}
		case "meta":
			content := strings.TrimSpace(attrValue(n, "content"))
			switch {
			case attrValue(n, "property") == "og:title":
				meta.ogTitle = content
			case attrValue(n, "property") == "og:description":
				meta.ogDesc = content
			case attrValue(n, "name") == "description":
				meta.description = content
			case attrValue(n, "name") == "author":
				meta.author = content
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, meta)
	}
}

// attrValue は要素の属性値を返す。存在しない場合は空文字列。
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent は要素配下のテキストを連結して返す。
func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		} else {
			b.WriteString(textContent(c))
		}
	}
	return b.String()
}

// sameOrigin は2つのURLのスキームとホストが一致するかを判定する。
func sameOrigin(url1, url2 string) bool {
	u1, err1 := url.Parse(url1)
	u2, err2 := url.Parse(url2)
	if err1 != nil || err2 != nil {
		return false
	}
	return u1.Scheme == u2.Scheme && u1.Host == u2.Host
}

// trimExcerpt は抜粋をタグ境界・文境界を考慮してideal前後で打ち切る。
// 打ち切った場合は末尾に省略記号を付ける。切断位置は常にルーン境界。
func trimExcerpt(s string, ideal, max int) string {
	if len(s) <= ideal {
		return s
	}

	i1 := strings.LastIndex(s[:ideal], "<")
	i2 := strings.LastIndex(s[:ideal], ">")
	if i1 >= 0 && i2 < i1 {
		// idealの位置がタグの途中にある場合はタグごと切り落とす
		s = s[:i1]
	} else if m := sentenceBreakPattern.FindStringIndex(s[ideal:]); m != nil {
		s = s[:ideal+m[0]]
	}

	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s + "…"
}
