// Package fetch はフィードのバックグラウンド取り込み処理を提供する。
// スケジューラ、フェッチャー、取り込みサイクルの実行を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
	"github.com/mbuesch/feedreaders/internal/repository"
)

// IngestService は1フィード分の取り込みサイクルを実行するインターフェース。
type IngestService interface {
	Ingest(ctx context.Context, feed *model.Feed) error
}

// Scheduler はフィード取り込みのスケジューリングと並列制御を行う。
// ポーリング間隔ごとに期限到来フィードを期限昇順で取得し、
// semaphoreパターンで最大並列数を制御しながらサイクルを起動する。
// 同一フィードのサイクルが実行中の間、そのフィードは再投入されない。
type Scheduler struct {
	feedRepo      repository.FeedRepository
	ingest        IngestService
	logger        *slog.Logger
	maxConcurrent int

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inFlight map[int64]bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrentが0以下の場合はデフォルト値10を使用する。
// maxConcurrent = 1 は全フィードの直列実行を意味する。
func NewScheduler(
	feedRepo repository.FeedRepository,
	ingest IngestService,
	logger *slog.Logger,
	maxConcurrent int,
) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Scheduler{
		feedRepo:      feedRepo,
		ingest:        ingest,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		inFlight:      make(map[int64]bool),
	}
}

// Start はポーリング間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされると新規サイクルの発行を止め、
// 実行中のサイクルの完了を待ってから戻る。
func (s *Scheduler) Start(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.logger.Info("フェッチスケジューラを開始しました",
		slog.Duration("poll_interval", pollInterval),
		slog.Int("max_concurrent", s.maxConcurrent),
	)

	// 起動直後に1回実行。未フェッチのフィードはすべて即時期限到来となる
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スケジューラサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("シャットダウン要求を受信しました。実行中のサイクルの完了を待ちます")
			s.wg.Wait()
			s.logger.Info("フェッチスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スケジューラサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限到来フィードを1回取得し、取り込みサイクルを起動する。
// サイクルの完了は待たない。実行中のフィードはスキップされ、
// サイクル完了後の次回ポーリングで再び考慮される。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	feeds, err := s.feedRepo.ListDue(ctx)
	if err != nil {
		return err
	}

	if len(feeds) == 0 {
		return nil
	}

	dispatched := 0
	for _, fd := range feeds {
		// 同一フィードの多重実行を防止する
		if !s.markInFlight(fd.ID) {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			// シャットダウン中は新規フェッチを発行しない
			s.clearInFlight(fd.ID)
			return ctx.Err()
		}

		dispatched++
		s.wg.Add(1)

		go func(fd *model.Feed) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			defer s.clearInFlight(fd.ID)

			if err := s.ingest.Ingest(ctx, fd); err != nil {
				s.logger.Error("フィードの取り込みに失敗しました",
					slog.Int64("feed_id", fd.ID),
					slog.String("feed_url", fd.URL),
					slog.String("kind", string(model.KindOf(err))),
					slog.String("error", err.Error()),
				)
			}
		}(fd)
	}

	if dispatched > 0 {
		s.logger.Info("取り込みサイクルを起動しました",
			slog.Int("due_count", len(feeds)),
			slog.Int("dispatched", dispatched),
		)
	}

	return nil
}

func (s *Scheduler) markInFlight(feedID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[feedID] {
		return false
	}
	s.inFlight[feedID] = true
	return true
}

func (s *Scheduler) clearInFlight(feedID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, feedID)
}
