package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

func testRecord() *model.PendingComment {
	return &model.PendingComment{
		Type:       model.RecordTypeComment,
		PostPath:   "content/2026/01/hello",
		PostURI:    "/2026/01/hello/",
		PostTitle:  "Hello World",
		AuthorName: "山田太郎",
		BodyHTML:   "<p>テスト</p>",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestNewToken_Format(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken returned error: %v", err)
	}
	if !ValidToken(token) {
		t.Errorf("generated token should be valid, got %q", token)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
}

func TestNewToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken returned error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = true
	}
}

func TestValidToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "正常な64文字の16進", token: strings.Repeat("0f", 32), want: true},
		{name: "短すぎる", token: "abc123", want: false},
		{name: "長すぎる", token: strings.Repeat("0f", 33), want: false},
		{name: "大文字を含む", token: strings.Repeat("0F", 32), want: false},
		{name: "16進以外の文字", token: strings.Repeat("0g", 32), want: false},
		{name: "パストラバーサル", token: "../../../etc/passwd", want: false},
		{name: "空文字列", token: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidToken(tt.token); got != tt.want {
				t.Errorf("ValidToken(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestFSStore_CreateAndLoad(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	rec := testRecord()
	rec.AuthorEmail = "taro@example.com"

	token, err := store.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !ValidToken(token) {
		t.Errorf("token should be valid, got %q", token)
	}

	loaded, err := store.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Token != token {
		t.Errorf("loaded.Token = %q, want %q", loaded.Token, token)
	}
	if loaded.AuthorName != "山田太郎" {
		t.Errorf("loaded.AuthorName = %q", loaded.AuthorName)
	}
	if loaded.AuthorEmail != "taro@example.com" {
		t.Errorf("loaded.AuthorEmail = %q", loaded.AuthorEmail)
	}
	if loaded.BodyHTML != "<p>テスト</p>" {
		t.Errorf("loaded.BodyHTML = %q", loaded.BodyHTML)
	}
}

func TestFSStore_Load_UnknownToken(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	_, err = store.Load(context.Background(), strings.Repeat("ab", 32))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestFSStore_Load_InvalidTokenIsNotFound は不正な形式のトークンが
// ファイルシステムに触れる前にnot foundになることをテストする。
func TestFSStore_Load_InvalidTokenIsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	// キューディレクトリの外のファイルは読めてはならない
	outside := filepath.Join(dir, "..", "secret")
	if err := os.WriteFile(outside, []byte("{}"), 0o600); err != nil {
		t.Fatalf("failed to write outside file: %v", err)
	}

	_, err = store.Load(context.Background(), "../secret")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("traversal token should be ErrNotFound, got %v", err)
	}
}

func TestFSStore_Delete(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	token, err := store.Create(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := store.Delete(context.Background(), token); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Load(context.Background(), token); !errors.Is(err, ErrNotFound) {
		t.Errorf("record should be gone after delete, got %v", err)
	}
}

// TestFSStore_Delete_Idempotent は存在しないトークンの削除がエラーに
// ならないことをテストする。
func TestFSStore_Delete_Idempotent(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	if err := store.Delete(context.Background(), strings.Repeat("ab", 32)); err != nil {
		t.Errorf("deleting unknown token should be no-op, got %v", err)
	}
}

func TestFSStore_Create_TokensDiffer(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	t1, err := store.Create(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	t2, err := store.Create(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if t1 == t2 {
		t.Errorf("tokens should differ, both %q", t1)
	}
}

func TestFSStore_PurgeOlderThan(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	oldRec := testRecord()
	oldRec.CreatedAt = time.Now().UTC().AddDate(0, 0, -120)
	oldToken, err := store.Create(context.Background(), oldRec)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	newRec := testRecord()
	newToken, err := store.Create(context.Background(), newRec)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	purged, err := store.PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeOlderThan returned error: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := store.Load(context.Background(), oldToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record should be purged, got %v", err)
	}
	if _, err := store.Load(context.Background(), newToken); err != nil {
		t.Errorf("recent record should remain, got %v", err)
	}
}

// TestFSStore_PurgeOlderThan_SkipsForeignFiles はトークン形式でない
// ファイルがパージ対象にならないことをテストする。
func TestFSStore_PurgeOlderThan_SkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	foreign := filepath.Join(dir, "README.txt")
	if err := os.WriteFile(foreign, []byte("not a record"), 0o600); err != nil {
		t.Fatalf("failed to write foreign file: %v", err)
	}

	purged, err := store.PurgeOlderThan(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("PurgeOlderThan returned error: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file should remain: %v", err)
	}
}
