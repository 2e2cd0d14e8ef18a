package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultEndpoint はGitHub REST APIのエンドポイント。
	defaultEndpoint = "https://api.github.com"

	// commitMessage はコメント追加コミットのメッセージ。
	commitMessage = "Added blog comment"
)

// commentFilePattern は既存コメントファイル名からIDを抽出するパターン。
var commentFilePattern = regexp.MustCompile(`^comment_(\d+)\.`)

// GitHubConfig はGitHubPublisherの設定。
type GitHubConfig struct {
	User   string // リポジトリのオーナー
	Repo   string // リポジトリ名
	Token  string // アクセストークン
	Branch string // コミット先ブランチ
}

// GitHubPublisher はGitHubのgit-data APIでコメントをコミットするPublisher実装。
// ブランチの先頭コミットを読み、コメントファイルのblobを含むツリーを作成し、
// コミットを作成してブランチrefをfast-forwardする。
type GitHubPublisher struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     GitHubConfig
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewGitHubPublisher はGitHubPublisherの新しいインスタンスを生成する。
func NewGitHubPublisher(httpClient *http.Client, logger *slog.Logger, config GitHubConfig) *GitHubPublisher {
	return &GitHubPublisher{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		endpoint:   defaultEndpoint,
	}
}

// --- APIレスポンス型（必要なフィールドのみ） ---

type branchHead struct {
	SHA    string `json:"sha"`
	Commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	} `json:"commit"`
}

type contentEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Path        string `json:"path"`
	DownloadURL string `json:"download_url"`
}

type treeEntry struct {
	Path    string `json:"path"`
	Mode    string `json:"mode"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

// commentMeta はコメントファイル先頭に埋め込むJSONメタデータ。
type commentMeta struct {
	PublishDate string `json:"publishDate"`
	Author      string `json:"author"`
	AuthorURL   string `json:"authorUrl"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	ID          string `json:"id"`
}

// replyMeta は返信ファイル先頭に埋め込むJSONメタデータ。
type replyMeta struct {
	ID          string `json:"id"`
	PublishDate string `json:"publishDate"`
}

// Publish はコメント（と任意の返信）を1コミットとしてリポジトリへ書き込む。
// コメントIDは対象ディレクトリ内の既存コメントファイルの最大ID+1を
// ゼロ埋め6桁で採番する。記事indexのfrontmatterのlastmodも更新する。
func (p *GitHubPublisher) Publish(ctx context.Context, payload *Payload) (string, error) {
	dirpath := strings.Trim(payload.PostPath, "/")
	if dirpath == "" || strings.Contains(dirpath, "..") {
		return "", fmt.Errorf("invalid post path: %q", payload.PostPath)
	}

	// 1. ブランチ先頭のコミットとツリーを取得
	var head branchHead
	if err := p.request(ctx, http.MethodGet, "commits/"+p.config.Branch, nil, &head); err != nil {
		return "", fmt.Errorf("failed to read branch head: %w", err)
	}

	// 2. 記事ディレクトリの内容を取得し、indexファイルと既存コメントの最大IDを特定
	var entries []contentEntry
	if err := p.request(ctx, http.MethodGet, "contents/content/"+dirpath, nil, &entries); err != nil {
		return "", fmt.Errorf("failed to list post directory: %w", err)
	}

	var indexPath, indexURL string
	maxComment := 0
	for _, entry := range entries {
		if entry.Type != "file" {
			continue
		}
		if strings.HasPrefix(entry.Name, "index.") {
			indexPath = path.Join("content", dirpath, entry.Name)
			indexURL = entry.DownloadURL
		}
		if m := commentFilePattern.FindStringSubmatch(entry.Name); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil && id > maxComment {
				maxComment = id
			}
		}
	}
	if indexPath == "" || indexURL == "" {
		return "", fmt.Errorf("post directory has no index file: %s", dirpath)
	}

	// 3. コメントファイルのツリーエントリを構築
	commentID := fmt.Sprintf("%06d", maxComment+1)
	now := time.Now().UTC()

	commentContent, err := encodeCommentFile(commentMeta{
		PublishDate: payload.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		Author:      payload.AuthorName,
		AuthorURL:   payload.AuthorWeb,
		Type:        payload.RecordType,
		Title:       payload.MentionTitle,
		ID:          commentID,
	}, payload.BodyHTML)
	if err != nil {
		return "", err
	}

	tree := []treeEntry{{
		Path:    path.Join("content", dirpath, fmt.Sprintf("comment_%s.html", commentID)),
		Mode:    "100644",
		Type:    "blob",
		Content: commentContent,
	}}

	if payload.ReplyHTML != "" {
		replyID := fmt.Sprintf("%06d", 1)
		replyContent, err := encodeCommentFile(replyMeta{
			ID:          replyID,
			PublishDate: now.Format("2006-01-02 15:04:05"),
		}, payload.ReplyHTML)
		if err != nil {
			return "", err
		}
		tree = append(tree, treeEntry{
			Path:    path.Join("content", dirpath, fmt.Sprintf("comment_%s_reply_%s.html", commentID, replyID)),
			Mode:    "100644",
			Type:    "blob",
			Content: replyContent,
		})
	}

	// 4. 記事indexのfrontmatterのlastmodを更新
	indexContent, err := p.download(ctx, indexURL)
	if err != nil {
		return "", fmt.Errorf("failed to download post index: %w", err)
	}
	tree = append(tree, treeEntry{
		Path:    indexPath,
		Mode:    "100644",
		Type:    "blob",
		Content: touchLastmod(indexContent, now),
	})

	// 5. ツリー → コミット → ref更新
	var newTree shaResponse
	if err := p.request(ctx, http.MethodPost, "git/trees", map[string]any{
		"base_tree": head.Commit.Tree.SHA,
		"tree":      tree,
	}, &newTree); err != nil {
		return "", fmt.Errorf("failed to create tree: %w", err)
	}

	var newCommit shaResponse
	if err := p.request(ctx, http.MethodPost, "git/commits", map[string]any{
		"message": commitMessage,
		"tree":    newTree.SHA,
		"parents": []string{head.SHA},
	}, &newCommit); err != nil {
		return "", fmt.Errorf("failed to create commit: %w", err)
	}

	if err := p.request(ctx, http.MethodPatch, "git/refs/heads/"+p.config.Branch, map[string]any{
		"sha": newCommit.SHA,
	}, nil); err != nil {
		return "", fmt.Errorf("failed to update branch ref: %w", err)
	}

	p.logger.Info("comment committed to repository",
		slog.String("post_path", dirpath),
		slog.String("comment_id", commentID),
		slog.String("commit_sha", newCommit.SHA),
	)

	return commentID, nil
}

// request はGitHub APIへの認証付きリクエストを実行し、レスポンスをoutへデコードする。
// apiPathは "repos/{user}/{repo}/" からの相対パス。
func (p *GitHubPublisher) request(ctx context.Context, method, apiPath string, body, out any) error {
	url := fmt.Sprintf("%s/repos/%s/%s/%s", p.endpoint, p.config.User, p.config.Repo, apiPath)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+p.config.Token)
	req.Header.Set("User-Agent", fmt.Sprintf("Blog comment moderation (user %s)", p.config.User))
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("GitHub API request failed",
			slog.String("method", method),
			slog.String("path", apiPath),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("GitHub API returned error status",
			slog.String("method", method),
			slog.String("path", apiPath),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("GitHub API returned status %d for %s %s", resp.StatusCode, method, apiPath)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GitHub API response: %w", err)
	}
	return nil
}

// download はdownload_URLからファイル内容を取得する。
func (p *GitHubPublisher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "token "+p.config.Token)
	req.Header.Set("User-Agent", fmt.Sprintf("Blog comment moderation (user %s)", p.config.User))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeCommentFile はJSONメタデータと本文HTMLからコメントファイルの内容を組み立てる。
func encodeCommentFile(meta any, body string) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode comment metadata: %w", err)
	}
	return string(data) + "\n\n" + body, nil
}

// touchLastmod は記事indexのfrontmatter内のlastmodを現在時刻に更新する。
// 既存のlastmod行は置換し、存在しない場合は閉じデリミタの直前に挿入する。
// frontmatterを持たないファイルは変更しない。
func touchLastmod(content string, now time.Time) string {
	const delim = "---"

	if !strings.HasPrefix(content, delim+"\n") {
		return content
	}

	end := strings.Index(content[len(delim)+1:], "\n"+delim)
	if end < 0 {
		return content
	}
	end += len(delim) + 1

	front := content[:end]
	rest := content[end:]
	stamp := "lastmod: " + now.Format("2006-01-02 15:04:05")

	lines := strings.Split(front, "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(line, "lastmod:") {
			lines[i] = stamp
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, stamp)
	}

	return strings.Join(lines, "\n") + rest
}
