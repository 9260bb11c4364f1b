// Package cleanup はキャンセル済みワーク要求の自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過したキャンセル済みの要求を
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner はキャンセル済みワーク要求の削除を抽象化するインターフェース。
// repository.WorkRequestRepository が実装する。
type Pruner interface {
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したキャンセル済みワーク要求の削除ジョブ。
// 削除対象がない場合も成功として扱う。
type CleanupJob struct {
	pruner        Pruner
	logger        *slog.Logger
	RetentionDays int // キャンセル後の保持日数（デフォルト: 30）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合は30日を使用する。
func NewCleanupJob(pruner Pruner, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run はupdated_atがRetentionDays日前より古いキャンセル済みワーク要求を削除する。
// syncwork.Handlerとしてスケジューラに登録できる。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().UTC().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.pruner.DeleteCancelledBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("ワーク要求クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ワーク要求クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("ワーク要求クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
