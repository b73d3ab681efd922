package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter はフィード元ホストごとのリクエストレートを制限する。
// 同一ホストに多数のフィードが登録されている場合でも、
// そのホストへのアクセスが設定レートを超えないようにする。
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter はHostLimiterの新しいインスタンスを生成する。
// perSecondが0以下の場合は制限なしとして扱う。
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Wait は指定ホストへのリクエストが許可されるまでブロックする。
// コンテキストがキャンセルされた場合はエラーを返す。
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l.limit <= 0 {
		return nil
	}
	return l.limiterFor(host).Wait(ctx)
}

func (l *HostLimiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = lim
	}
	return lim
}
