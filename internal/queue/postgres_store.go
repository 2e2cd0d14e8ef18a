package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

// PostgresStore はPostgreSQLバックエンドのキューストア。
// comment_queueテーブルにトークン1つにつき1行を保持する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create は新しいトークンでレコードをINSERTする。
// ON CONFLICT DO NOTHINGで衝突を検出し、衝突時はトークンを再生成する。
func (s *PostgresStore) Create(ctx context.Context, rec *model.PendingComment) (string, error) {
	query := `
		INSERT INTO comment_queue
			(token, record_type, post_path, post_uri, post_title,
			 author_name, author_email, author_web, source_url, body_html, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (token) DO NOTHING`

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := NewToken()
		if err != nil {
			return "", err
		}

		result, err := s.db.ExecContext(ctx, query,
			token, string(rec.Type), rec.PostPath, rec.PostURI, rec.PostTitle,
			rec.AuthorName, rec.AuthorEmail, rec.AuthorWeb, rec.SourceURL,
			rec.BodyHTML, rec.CreatedAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert queue record: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			// トークン衝突。再生成して試行し直す。
			continue
		}

		rec.Token = token
		return token, nil
	}

	return "", fmt.Errorf("token collision persisted after %d attempts", maxTokenAttempts)
}

// Load は指定トークンのレコードを取得する。
func (s *PostgresStore) Load(ctx context.Context, token string) (*model.PendingComment, error) {
	if !ValidToken(token) {
		return nil, ErrNotFound
	}

	query := `
		SELECT token, record_type, post_path, post_uri, post_title,
		       author_name, author_email, author_web, source_url, body_html, created_at
		FROM comment_queue
		WHERE token = $1`

	var rec model.PendingComment
	var recordType string
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&rec.Token, &recordType, &rec.PostPath, &rec.PostURI, &rec.PostTitle,
		&rec.AuthorName, &rec.AuthorEmail, &rec.AuthorWeb, &rec.SourceURL,
		&rec.BodyHTML, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load queue record: %w", err)
	}
	rec.Type = model.RecordType(recordType)

	return &rec, nil
}

// Delete は指定トークンのレコードを削除する。冪等。
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM comment_queue WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete queue record: %w", err)
	}
	return nil
}

// PurgeOlderThan はcreated_atがcutoffより古いレコードを一括削除する。
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM comment_queue WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue records: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return purged, nil
}
