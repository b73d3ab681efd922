// Package revision はプロセス全体のリビジョンカウンタを提供する。
// 取り込みサイクルが可視状態を変化させるたびに1回だけインクリメントされ、
// 外部の読み取りはロックなしで行える。
package revision

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mbuesch/feedreaders/internal/repository"
)

// Counter は永続化された単調増加リビジョンカウンタ。
// 値はデータベースに永続化しつつ、読み取り用にアトミックなキャッシュを保持する。
// 読み取りは取り込みの進行を一切ブロックしない。
type Counter struct {
	repo  repository.RevisionRepository
	value atomic.Int64
}

// Load は起動時にデータベースから現在値を読み込んでCounterを生成する。
func Load(ctx context.Context, repo repository.RevisionRepository) (*Counter, error) {
	current, err := repo.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("リビジョンカウンタの読み込みに失敗しました: %w", err)
	}

	c := &Counter{repo: repo}
	c.value.Store(current)
	return c, nil
}

// Bump はカウンタをアトミックにインクリメントして永続化し、新しい値を返す。
// 変化のあったサイクルごとに最大1回だけ呼び出すこと。
func (c *Counter) Bump(ctx context.Context) (int64, error) {
	newValue, err := c.repo.Increment(ctx)
	if err != nil {
		return 0, err
	}

	// 並行するBump同士で古い値を書き戻さないよう、大きい値のみ反映する。
	for {
		old := c.value.Load()
		if newValue <= old {
			break
		}
		if c.value.CompareAndSwap(old, newValue) {
			break
		}
	}

	return newValue, nil
}

// Read は現在のリビジョン値を返す。
// 進行中の取り込みとは一切協調しないため、わずかに古い値を返すことはあるが、
// 減少した値や壊れた値を返すことはない。
func (c *Counter) Read() int64 {
	return c.value.Load()
}
