// Package cleanup はモデレーション待ちキューの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過して放置されたレコードを一括削除する。
// 削除はモデレーション却下と同じく復元不能であり、投稿者メールアドレスの
// 無期限滞留を防ぐ。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/commentq/internal/queue"
)

// defaultRetentionDays はレコードのデフォルト保持日数。
const defaultRetentionDays = 90

// CleanupJob は保持期間を超過したキューレコードの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	store         queue.Store
	logger        *slog.Logger
	RetentionDays int // レコードの保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store queue.Store, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:         store,
		logger:        logger,
		RetentionDays: defaultRetentionDays,
	}
}

// Run は保持期間を超過したレコードを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := time.Now().UTC().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("キュークリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("キュークリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("キュークリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
