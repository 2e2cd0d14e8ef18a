// Package publish は承認済みコメントをサイトのソースリポジトリへ
// コミットする機能を提供する。
package publish

import (
	"context"
	"time"
)

// Payload はPublisherが受け取るコミット内容を表す。
// 本文・返信はいずれもサニタイズ済みHTMLのみが渡される。
type Payload struct {
	// PostPath は対象記事のソースリポジトリ相対パス。
	PostPath string
	// MentionTitle は言及元ページのタイトル。commentの場合は空。
	MentionTitle string
	// AuthorName は投稿者名。
	AuthorName string
	// AuthorWeb は投稿者のWebサイトURL（空でもよい）。
	AuthorWeb string
	// RecordType はレコード種別（comment / mention）。
	RecordType string
	// BodyHTML はサニタイズ済みのコメント本文。
	BodyHTML string
	// ReplyHTML はサニタイズ済みのオーナー返信（任意、空なら返信なし）。
	ReplyHTML string
	// CreatedAt はコメントの投稿日時。
	CreatedAt time.Time
}

// Publisher は承認済みコメントのコミット先のインターフェース。
type Publisher interface {
	// Publish はコメント（と任意の返信）を1コミットとしてリポジトリへ
	// 書き込み、採番されたコメントIDを返す。
	Publish(ctx context.Context, p *Payload) (commentID string, err error)
}
