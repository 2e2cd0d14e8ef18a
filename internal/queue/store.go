// Package queue はモデレーション待ちコメントのステージング領域を提供する。
//
// ストアはトークンをキーとする不透明なレコードの置き場であり、
// create / load / delete のみを公開する。履歴は一切持たず、削除された
// レコードは設計上復元不能である（これが投稿者メールアドレスの
// 消去保証の実装そのものになる）。
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

// ErrNotFound はトークンに対応するレコードが存在しないことを示す。
// 未知のトークンとモデレーション済みトークンは意図的に区別されない。
var ErrNotFound = errors.New("queue: record not found")

// Store はキューストアの永続化インターフェース。
// バックエンド（ファイルシステム、PostgreSQL）はワークフローに
// 影響を与えずに差し替えられる。
type Store interface {
	// Create は新しいトークンを生成してレコードを永続化し、トークンを返す。
	// トークンの衝突は検出して再生成し、規定回数を超えた場合はエラーを返す。
	// 永続化はall-or-nothingであり、失敗時に部分レコードは残らない。
	// トークンは永続化が成功した後にのみ呼び出し元へ開示される。
	Create(ctx context.Context, rec *model.PendingComment) (string, error)

	// Load は指定トークンのレコードを取得する。
	// 存在しない場合はErrNotFoundを返す。
	Load(ctx context.Context, token string) (*model.PendingComment, error)

	// Delete は指定トークンのレコードを削除する。冪等であり、
	// 存在しないトークンの削除はエラーにならない。
	Delete(ctx context.Context, token string) error

	// PurgeOlderThan はcutoffより古いレコードを一括削除し、削除件数を返す。
	// コア外のクリーンアップポリシーから使用される。
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	// tokenBytes はトークンの乱数バイト長。16進エンコード後は64文字になる。
	tokenBytes = 32

	// maxTokenAttempts はトークン衝突時の再生成の上限回数。
	// 32バイト乱数の衝突は天文学的に稀であり、上限到達は乱数源の
	// 異常を意味するため致命的エラーとして扱う。
	maxTokenAttempts = 5
)

// tokenPattern は有効なトークンの形式。
var tokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NewToken は暗号的に安全な新しいトークンを生成する。
// トークンはレコード内容やタイムスタンプから導出されない。
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidToken はトークンが規定の形式かどうかを検証する。
// ハンドラーはストアに触れる前にこの検証を行う（ファイルシステム
// バックエンドに対するパストラバーサルもここで遮断される）。
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}
