// Package cleanup はスクレイプジョブ記録の自動削除ジョブを提供する。
// ジョブの実体はバックエンドにあるため、ローカル記録は履歴表示の
// 役割しかない。保持期間（デフォルト30日）を超過した終端状態の
// 記録を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// JobDeleter は古いジョブ記録の削除を抽象化するインターフェース。
type JobDeleter interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したジョブ記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	repo          JobDeleter
	logger        *slog.Logger
	RetentionDays int // ジョブ記録の保持日数（デフォルト: 30）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(repo JobDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run は保持期間を超過した終端状態のジョブ記録を削除する。
// finished_atがRetentionDays日前より古い記録が対象。
// 実行中・待機中のジョブは保持日数にかかわらず削除しない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("ジョブ記録クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ジョブ記録クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("ジョブ記録クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
