// Package cleanup はオフラインキューの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した送信失敗メッセージを日次で削除する。
// 送信待ちのメッセージは対象外。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は失敗メッセージの保持日数のデフォルト値。
const DefaultRetentionDays = 30

// FailedPurger は古い失敗メッセージを削除するインターフェース。
// *queue.SQLiteStore が満たす。
type FailedPurger interface {
	DeleteFailedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した失敗メッセージの削除ジョブ。
// 削除対象がなくてもエラーにならない。
type CleanupJob struct {
	store         FailedPurger
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使用する。
func NewCleanupJob(store FailedPurger, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		store:         store,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run はRetentionDays日より前に作成された失敗メッセージを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.store.DeleteFailedBefore(ctx, cutoff)
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

// Start はinterval間隔でRunを実行する。起動直後にも1回実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
