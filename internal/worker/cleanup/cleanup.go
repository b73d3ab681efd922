// Package cleanup は孤児記事の自動削除ジョブを提供する。
// フィード行が失われた記事を日次バッチで削除する。移行元の古い
// データベースにはFK制約がなく、孤児記事が残っていることがある。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OrphanSweepJob はフィード行の存在しない記事を削除するバッチジョブ。
// 起動直後と日次で実行され、冪等な削除処理を保証する。
type OrphanSweepJob struct {
	db     Executor
	logger *slog.Logger
}

// NewOrphanSweepJob は新しいOrphanSweepJobを生成する。
func NewOrphanSweepJob(db Executor, logger *slog.Logger) *OrphanSweepJob {
	return &OrphanSweepJob{
		db:     db,
		logger: logger,
	}
}

// Run はフィード行の存在しない記事を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *OrphanSweepJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM items WHERE feed_id NOT IN (SELECT id FROM feeds)`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("孤児記事クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("孤児記事クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("孤児記事クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後は指定間隔で実行を繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *OrphanSweepJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("孤児記事クリーンアップに失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("孤児記事クリーンアップに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
