package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

// FSStore はファイルシステムバックエンドのキューストア。
// トークン1つにつきファイル1つを保持し、ファイル名はトークン値そのもの。
// ファイルの不存在が唯一の「not found」シグナルになる。
type FSStore struct {
	dir string
}

// NewFSStore はFSStoreを生成する。キューディレクトリが存在しない場合は作成する。
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Create は新しいトークンでレコードをファイルに書き込む。
// O_EXCLによる排他作成でトークン衝突を検出し、衝突時は再生成する。
// 書き込みに失敗した場合はファイルを削除し、部分レコードを残さない。
func (s *FSStore) Create(ctx context.Context, rec *model.PendingComment) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := NewToken()
		if err != nil {
			return "", err
		}

		stored := *rec
		stored.Token = token

		data, err := json.Marshal(&stored)
		if err != nil {
			return "", fmt.Errorf("failed to encode queue record: %w", err)
		}

		path := filepath.Join(s.dir, token)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if os.IsExist(err) {
				// トークン衝突。再生成して試行し直す。
				continue
			}
			return "", fmt.Errorf("failed to create queue record: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write queue record: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to sync queue record: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to close queue record: %w", err)
		}

		rec.Token = token
		return token, nil
	}

	return "", fmt.Errorf("token collision persisted after %d attempts", maxTokenAttempts)
}

// Load は指定トークンのレコードを読み込む。
func (s *FSStore) Load(ctx context.Context, token string) (*model.PendingComment, error) {
	if !ValidToken(token) {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.dir, token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read queue record: %w", err)
	}

	var rec model.PendingComment
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode queue record: %w", err)
	}

	return &rec, nil
}

// Delete は指定トークンのレコードを削除する。冪等。
func (s *FSStore) Delete(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return nil
	}

	if err := os.Remove(filepath.Join(s.dir, token)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete queue record: %w", err)
	}
	return nil
}

// PurgeOlderThan はCreatedAtがcutoffより古いレコードを削除する。
// トークン形式に合致しないファイルと読み取れないファイルはスキップする。
func (s *FSStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue directory: %w", err)
	}

	var purged int64
	for _, entry := range entries {
		if entry.IsDir() || !ValidToken(entry.Name()) {
			continue
		}

		rec, err := s.Load(ctx, entry.Name())
		if err != nil {
			continue
		}

		if rec.CreatedAt.Before(cutoff) {
			if err := s.Delete(ctx, entry.Name()); err != nil {
				return purged, err
			}
			purged++
		}
	}

	return purged, nil
}
