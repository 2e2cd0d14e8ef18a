// Package post は公開URIから対象記事を解決するドメインロジックを提供する。
//
// 静的サイトジェネレータが出力した公開ディレクトリ配下のページを読み、
// コメントフォームに埋め込まれたソースリポジトリパス（data-path属性）を
// 抽出する。副作用はなく、純粋なルックアップとパースのみ。
package post

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// ErrNotFound はURIに対応する生成済みページが存在しないことを示す。
var ErrNotFound = errors.New("post: page not found")

// ErrMalformedPage はページは存在するがdata-path属性を持たないことを示す。
var ErrMalformedPage = errors.New("post: page has no data-path attribute")

// Article は解決された記事の情報を表す。
type Article struct {
	// RepoPath は記事のソースリポジトリ相対パス。
	RepoPath string
	// Title はページの<title>要素の内容。表示・通知用で、欠落していてもよい。
	Title string
}

// Resolver は公開URIから記事を解決する。
type Resolver struct {
	publicDir string
}

// NewResolver はResolverを生成する。publicDirは生成済みサイトのルート。
func NewResolver(publicDir string) *Resolver {
	return &Resolver{publicDir: publicDir}
}

// Resolve はURIに対応する生成済みページを読み、記事情報を返す。
// URIは公開ディレクトリ配下のindex.htmlにマップされる。
// 公開ディレクトリ外へ出るパスはErrNotFoundとして扱う。
func (r *Resolver) Resolve(uri string) (*Article, error) {
	path, err := r.pagePath(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	defer f.Close()

	repoPath, title, found := extractPageMeta(f)
	if !found {
		return nil, ErrMalformedPage
	}

	return &Article{RepoPath: repoPath, Title: title}, nil
}

// pagePath はURIを公開ディレクトリ配下のページパスに変換する。
// クリーン後のパスが公開ディレクトリの外を指す場合は拒否する。
func (r *Resolver) pagePath(uri string) (string, error) {
	base, err := filepath.Abs(r.publicDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve public directory: %w", err)
	}

	segments := strings.Split(strings.Trim(uri, "/"), "/")
	joined := filepath.Join(append([]string{base}, segments...)...)
	joined = filepath.Join(joined, "index.html")

	// トラバーサルガード: クリーン済みパスは必ず公開ディレクトリ配下にある
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", ErrNotFound
	}

	return joined, nil
}

// extractPageMeta はページのHTMLをトークナイザで走査し、
// <form>のdata-path属性と<title>の内容を抽出する。
// data-pathが見つかった場合のみfound=trueを返す。
func extractPageMeta(r io.Reader) (repoPath, title string, found bool) {
	tokenizer := html.NewTokenizer(r)
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return repoPath, title, found

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "form":
				for _, attr := range token.Attr {
					if attr.Key == "data-path" && attr.Val != "" {
						repoPath = attr.Val
						found = true
					}
				}
				if found && title != "" {
					return repoPath, title, found
				}
			case "title":
				inTitle = true
			}

		case html.TextToken:
			if inTitle {
				title += string(tokenizer.Text())
			}

		case html.EndTagToken:
			token := tokenizer.Token()
			if token.Data == "title" {
				inTitle = false
				title = strings.TrimSpace(title)
				if found {
					return repoPath, title, found
				}
			}
		}
	}
}
