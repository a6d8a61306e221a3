// Package cleanup は期限切れトークンの定期削除ジョブを提供する。
// 検証はexpires_atで判定するため、削除しなくても期限切れトークンは受理されない。
// 削除後の検証結果はExpiredからInvalidTokenに変わるが、どちらも認証失敗として扱われる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Daison12121/tilda-backend/internal/repository"
)

// DefaultInterval はStartに0以下の間隔が渡された場合に使う実行間隔。
const DefaultInterval = time.Hour

// PruneRecorder は削除件数を記録するインターフェース。
// metrics.Collectorが実装する。
type PruneRecorder interface {
	RecordTokensPruned(count int64)
}

// CleanupJob は期限切れトークンの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	pruner   repository.TokenPruner
	recorder PruneRecorder
	logger   *slog.Logger

	// Retention は期限切れ後もトークンを残す期間（デフォルト: 0）。
	Retention time.Duration
	// Now は現在時刻を返す（デフォルト: time.Now）。
	Now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderはnilでもよい。
func NewCleanupJob(pruner repository.TokenPruner, recorder PruneRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:   pruner,
		recorder: recorder,
		logger:   logger,
		Now:      time.Now,
	}
}

// Run はexpires_atがNow() - Retentionより古いトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.Now().Add(-j.Retention)

	deleted, err := j.pruner.DeleteExpiredTokens(ctx, cutoff)
	if err != nil {
		j.logger.Error("token cleanup failed",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordTokensPruned(deleted)
	}

	j.logger.Info("token cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。Runの失敗はログに記録して継続する。
// intervalが0以下の場合はDefaultIntervalを使う。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("non-positive cleanup interval, using default",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultInterval),
		)
		interval = DefaultInterval
	}

	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("token cleanup stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)
}
