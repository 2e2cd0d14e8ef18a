// Package model はドメインモデルを定義する。
package model

import "time"

// RecordType はキュー内レコードの種別を表す。
type RecordType string

const (
	// RecordTypeComment は通常のコメント投稿。
	RecordTypeComment RecordType = "comment"
	// RecordTypeMention はWebmentionによる言及通知。
	RecordTypeMention RecordType = "mention"
)

// PendingComment はモデレーション待ちのキューレコードを表す。
// トークンはストレージキーとレビューURLの資格情報を兼ねる。
// レコードはキュー滞在中イミュータブルであり、承認・却下のいずれかで
// ちょうど1回削除される。削除と同時にAuthorEmailは復元不能になる。
type PendingComment struct {
	// Token はレコードの識別子。32バイトの乱数を16進エンコードした64文字。
	Token string `json:"token"`

	// Type はレコード種別（comment / mention）。
	Type RecordType `json:"type"`

	// PostPath は対象記事のソースリポジトリ相対パス。投稿時に一度だけ解決される。
	PostPath string `json:"post_path"`

	// PostURI は投稿時に指定された公開URI。表示・監査用。
	PostURI string `json:"post_uri"`

	// PostTitle は対象記事のタイトル。レビュー画面とメール通知で使用する。
	PostTitle string `json:"post_title"`

	// AuthorName は投稿者名。
	AuthorName string `json:"author_name"`

	// AuthorEmail は投稿者のメールアドレス（任意）。
	// 返信通知を希望する場合のみ保持し、モデレーション完了後は一切残らない。
	AuthorEmail string `json:"author_email,omitempty"`

	// AuthorWeb は投稿者のWebサイトURL（任意）。
	AuthorWeb string `json:"author_web,omitempty"`

	// SourceURL はWebmentionの言及元URL。コメントの場合は空。
	SourceURL string `json:"source_url,omitempty"`

	// BodyHTML はサニタイズ済みのコメント本文HTML。
	// 生の入力はサニタイズ後に保持されず、永続化・再表示されるのはこの形のみ。
	BodyHTML string `json:"body_html"`

	// CreatedAt は投稿日時（UTC）。有効期限の判定はコア外のクリーンアップ
	// ポリシーに委ねる。
	CreatedAt time.Time `json:"created_at"`
}

// Decision はモデレーション時の決定を表す。キューには保存されない。
type Decision struct {
	// Approve はtrueで承認、falseで却下を示す。
	Approve bool

	// ReplyBody はサイトオーナーの返信本文（Markdown、任意）。
	ReplyBody string

	// NotifyAuthor は投稿者への返信メール通知を行うかどうか。
	// 投稿者がメールアドレスを残していない場合は無視される。
	NotifyAuthor bool
}
