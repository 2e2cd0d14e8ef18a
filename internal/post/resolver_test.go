package post

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writePage はテスト用の生成済みページを公開ディレクトリ配下に書き込む。
func writePage(t *testing.T, publicDir, uri, content string) {
	t.Helper()
	dir := filepath.Join(publicDir, filepath.FromSlash(uri))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create page directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
}

const validPage = `<!DOCTYPE html>
<html>
<head><title>Hello World - My Blog</title></head>
<body>
<article>本文</article>
<form method="post" data-path="content/2026/01/hello">
<input name="name">
</form>
</body>
</html>`

func TestResolver_Resolve_Success(t *testing.T) {
	publicDir := t.TempDir()
	writePage(t, publicDir, "2026/01/hello", validPage)

	r := NewResolver(publicDir)
	article, err := r.Resolve("/2026/01/hello/")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.RepoPath != "content/2026/01/hello" {
		t.Errorf("article.RepoPath = %q, want %q", article.RepoPath, "content/2026/01/hello")
	}
	if article.Title != "Hello World - My Blog" {
		t.Errorf("article.Title = %q", article.Title)
	}
}

func TestResolver_Resolve_PageNotFound(t *testing.T) {
	r := NewResolver(t.TempDir())

	_, err := r.Resolve("/no/such/post/")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestResolver_Resolve_MissingDataPath はdata-path属性のないページが
// ErrMalformedPageになることをテストする。
func TestResolver_Resolve_MissingDataPath(t *testing.T) {
	publicDir := t.TempDir()
	writePage(t, publicDir, "2026/01/nopath", `<html><head><title>x</title></head><body><form method="post"></form></body></html>`)

	r := NewResolver(publicDir)
	_, err := r.Resolve("/2026/01/nopath/")
	if !errors.Is(err, ErrMalformedPage) {
		t.Errorf("expected ErrMalformedPage, got %v", err)
	}
}

// TestResolver_Resolve_TitleOptional はtitle要素がなくてもdata-pathが
// あれば解決できることをテストする。
func TestResolver_Resolve_TitleOptional(t *testing.T) {
	publicDir := t.TempDir()
	writePage(t, publicDir, "2026/01/notitle", `<html><body><form data-path="content/2026/01/notitle"></form></body></html>`)

	r := NewResolver(publicDir)
	article, err := r.Resolve("/2026/01/notitle/")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.RepoPath != "content/2026/01/notitle" {
		t.Errorf("article.RepoPath = %q", article.RepoPath)
	}
	if article.Title != "" {
		t.Errorf("article.Title should be empty, got %q", article.Title)
	}
}

// TestResolver_Resolve_TraversalBlocked は公開ディレクトリ外を指すURIが
// 拒否されることをテストする。
func TestResolver_Resolve_TraversalBlocked(t *testing.T) {
	base := t.TempDir()
	publicDir := filepath.Join(base, "public")
	if err := os.MkdirAll(publicDir, 0o755); err != nil {
		t.Fatalf("failed to create public dir: %v", err)
	}

	// 公開ディレクトリの1つ上にページを置く
	outsideDir := filepath.Join(base, "secret")
	if err := os.MkdirAll(outsideDir, 0o755); err != nil {
		t.Fatalf("failed to create outside dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outsideDir, "index.html"), []byte(validPage), 0o644); err != nil {
		t.Fatalf("failed to write outside page: %v", err)
	}

	r := NewResolver(publicDir)
	_, err := r.Resolve("/../secret/")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("traversal URI should be ErrNotFound, got %v", err)
	}
}

func TestResolver_Resolve_RootURI(t *testing.T) {
	publicDir := t.TempDir()
	writePage(t, publicDir, ".", validPage)

	r := NewResolver(publicDir)
	article, err := r.Resolve("/")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.RepoPath != "content/2026/01/hello" {
		t.Errorf("article.RepoPath = %q", article.RepoPath)
	}
}
