package fetch

import (
	"math/rand"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
)

// ComputeNextDue は次回フェッチ予定日時を計算する。
// attemptを基点に `interval * (1 + slack)` を加算する。slackは
// `[0, slackFraction)` から毎サイクル独立に一様に引き直されるため、
// 失敗を繰り返すフィードが固定位相に揃うことはない。
func ComputeNextDue(attempt time.Time, interval time.Duration, slackFraction float64, rng *rand.Rand) time.Time {
	if slackFraction > 0 {
		jitter := time.Duration(rng.Float64() * slackFraction * float64(interval))
		interval += jitter
	}
	return attempt.Add(interval)
}

// ApplySuccess はサイクル成功時のフィード状態を設定する。
// 最終フェッチ日時を記録し、エラーをクリアし、次回予定日時を設定する。
func ApplySuccess(feed *model.Feed, now, nextDue time.Time) {
	t := now
	feed.LastFetchAt = &t
	feed.LastError = ""
	feed.NextFetchAt = nextDue
	feed.UpdatedAt = now
}

// ApplyFailure はサイクル失敗時のフィード状態を設定する。
// エラー内容を記録し、次回予定日時を設定する。即時リトライは行わず、
// 次回予定日時まで再試行されない。最終フェッチ成功日時は変更しない。
func ApplyFailure(feed *model.Feed, now time.Time, cause error, nextDue time.Time) {
	feed.LastError = cause.Error()
	feed.NextFetchAt = nextDue
	feed.UpdatedAt = now
}
