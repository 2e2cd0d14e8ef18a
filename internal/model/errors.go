// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, moderation, storage, publish, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingField   = "MISSING_FIELD"
	ErrCodeInvalidEmail   = "INVALID_EMAIL"
	ErrCodeInvalidWebsite = "INVALID_WEBSITE"
	ErrCodeInvalidURI     = "INVALID_URI"
	ErrCodePostNotFound   = "POST_NOT_FOUND"
	ErrCodeMalformedPage  = "MALFORMED_PAGE"
	ErrCodeTokenNotFound  = "TOKEN_NOT_FOUND"
	ErrCodeStorageFailed  = "STORAGE_FAILED"
	ErrCodePublishFailed  = "PUBLISH_FAILED"
	ErrCodeInvalidMention = "INVALID_MENTION"
)

// NewMissingFieldError は必須フィールド未入力エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("%s は必須です。", field),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewInvalidEmailError は不正なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "メールアドレスを確認するか、空欄のまま送信してください。",
	}
}

// NewInvalidWebsiteError は不正なWebサイトURLエラーを生成する。
func NewInvalidWebsiteError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebsite,
		Message:  "WebサイトのURLの形式が正しくありません。",
		Category: "validation",
		Action:   "http:// または https:// で始まるURLを入力するか、空欄のまま送信してください。",
	}
}

// NewInvalidURIError は不正な記事URIエラーを生成する。
func NewInvalidURIError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURI,
		Message:  "記事のURIが指定されていないか、形式が正しくありません。",
		Category: "validation",
		Action:   "記事ページから再度コメントを送信してください。",
	}
}

// NewPostNotFoundError は対象記事未検出エラーを生成する。
func NewPostNotFoundError(uri string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定されたURIに対応する記事が見つかりません: %s", uri),
		Category: "validation",
		Action:   "記事ページから再度コメントを送信してください。",
	}
}

// NewMalformedPageError は生成済みページの属性欠落エラーを生成する。
func NewMalformedPageError(uri string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedPage,
		Message:  fmt.Sprintf("記事ページからリポジトリパスを抽出できませんでした: %s", uri),
		Category: "system",
		Action:   "サイトの再生成後に再度お試しください。",
	}
}

// NewTokenNotFoundError はモデレーショントークン未検出エラーを生成する。
// 未知のトークンとモデレーション済みトークンを意図的に区別しない
// （トークン列挙によるサイドチャネルを防ぐ）。
func NewTokenNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenNotFound,
		Message:  "指定されたコメントが見つかりません。",
		Category: "moderation",
		Action:   "通知メールのリンクを確認してください。モデレーション済みの可能性があります。",
	}
}

// NewStorageError はキューストレージの入出力エラーを生成する。
func NewStorageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  fmt.Sprintf("キューストレージの操作に失敗しました: %s", reason),
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPublishFailedError はリポジトリへのコミット失敗エラーを生成する。
func NewPublishFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePublishFailed,
		Message:  fmt.Sprintf("コメントのリポジトリへのコミットに失敗しました: %s", reason),
		Category: "publish",
		Action:   "キューのレコードは削除済みです。ログから本文を回収し、手動で再投稿してください。",
	}
}

// NewInvalidMentionError は不正なWebmentionリクエストエラーを生成する。
func NewInvalidMentionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMention,
		Message:  fmt.Sprintf("Webmentionの形式が正しくありません: %s", reason),
		Category: "validation",
		Action:   "source と target を正しく指定してください。",
	}
}
