package fetch

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mbuesch/feedreaders/internal/model"
)

// --- モック定義 ---

// mockFeedRepo はFeedRepositoryのテスト用モック。
type mockFeedRepo struct {
	listDueFunc          func(ctx context.Context) ([]*model.Feed, error)
	updateFetchStateFunc func(ctx context.Context, feed *model.Feed) error
}

func (m *mockFeedRepo) FindByID(ctx context.Context, id int64) (*model.Feed, error) {
	return nil, nil
}

func (m *mockFeedRepo) Create(ctx context.Context, feed *model.Feed) error { return nil }

func (m *mockFeedRepo) ListDue(ctx context.Context) ([]*model.Feed, error) {
	if m.listDueFunc != nil {
		return m.listDueFunc(ctx)
	}
	return nil, nil
}

func (m *mockFeedRepo) UpdateTitleTx(ctx context.Context, tx *sql.Tx, feedID int64, title string) error {
	return nil
}

func (m *mockFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	if m.updateFetchStateFunc != nil {
		return m.updateFetchStateFunc(ctx, feed)
	}
	return nil
}

// mockIngest はIngestServiceのテスト用モック。
type mockIngest struct {
	ingestFunc func(ctx context.Context, feed *model.Feed) error
}

func (m *mockIngest) Ingest(ctx context.Context, feed *model.Feed) error {
	if m.ingestFunc != nil {
		return m.ingestFunc(ctx, feed)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func makeFeeds(n int) []*model.Feed {
	feeds := make([]*model.Feed, 0, n)
	for i := 0; i < n; i++ {
		feeds = append(feeds, &model.Feed{ID: int64(i + 1), URL: "https://example.com/feed.xml"})
	}
	return feeds
}

// --- スケジューラのテスト ---

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockFeedRepo{}, &mockIngest{}, newTestLogger(&buf), 0)
	if s.maxConcurrent != 10 {
		t.Errorf("maxConcurrent = %d, want default 10", s.maxConcurrent)
	}
}

func TestScheduler_RunOnce_NoDueFeeds(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return nil, nil
		},
	}
	called := atomic.Int64{}
	ingest := &mockIngest{
		ingestFunc: func(ctx context.Context, feed *model.Feed) error {
			called.Add(1)
			return nil
		},
	}

	s := NewScheduler(repo, ingest, newTestLogger(&buf), 2)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.wg.Wait()

	if called.Load() != 0 {
		t.Error("期限到来フィードがない場合、取り込みは起動されない")
	}
}

func TestScheduler_RunOnce_ListDueError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return nil, errors.New("db down")
		},
	}

	s := NewScheduler(repo, &mockIngest{}, newTestLogger(&buf), 2)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("ListDueの失敗でエラーが返るべき")
	}
}

// 並列数の上限: 設定値Nを超える取り込みが同時に実行されないこと。
func TestScheduler_RunOnce_BoundsConcurrency(t *testing.T) {
	testBound := func(t *testing.T, bound int) {
		var buf bytes.Buffer
		feeds := makeFeeds(8)
		repo := &mockFeedRepo{
			listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
				return feeds, nil
			},
		}

		var current, peak, total atomic.Int64
		gate := make(chan struct{})
		ingest := &mockIngest{
			ingestFunc: func(ctx context.Context, feed *model.Feed) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-gate
				current.Add(-1)
				total.Add(1)
				return nil
			},
		}

		s := NewScheduler(repo, ingest, newTestLogger(&buf), bound)

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := s.RunOnce(context.Background()); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		}()

		// 全8フィード分を通す
		for i := 0; i < len(feeds); i++ {
			gate <- struct{}{}
		}
		<-done
		s.wg.Wait()

		if total.Load() != int64(len(feeds)) {
			t.Errorf("total = %d, want %d", total.Load(), len(feeds))
		}
		if peak.Load() > int64(bound) {
			t.Errorf("peak concurrency = %d, 上限 %d を超えてはならない", peak.Load(), bound)
		}
	}

	t.Run("N=3", func(t *testing.T) { testBound(t, 3) })
	t.Run("N=1で直列", func(t *testing.T) { testBound(t, 1) })
}

// 同一フィードの多重実行防止: サイクル実行中のフィードは再投入されない。
func TestScheduler_RunOnce_PerFeedExclusivity(t *testing.T) {
	var buf bytes.Buffer
	feed := &model.Feed{ID: 1, URL: "https://example.com/feed.xml"}
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return []*model.Feed{feed}, nil
		},
	}

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	ingest := &mockIngest{
		ingestFunc: func(ctx context.Context, fd *model.Feed) error {
			calls.Add(1)
			close(started)
			<-release
			return nil
		},
	}

	s := NewScheduler(repo, ingest, newTestLogger(&buf), 4)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	<-started

	// サイクル実行中の再投入はスキップされる
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	close(release)
	s.wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("ingest calls = %d, 同一フィードは同時に1サイクルのみ実行されるべき", calls.Load())
	}
}

// サイクル完了後のフィードは再び投入可能になる。
func TestScheduler_RunOnce_FeedReentersAfterCompletion(t *testing.T) {
	var buf bytes.Buffer
	feed := &model.Feed{ID: 1, URL: "https://example.com/feed.xml"}
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return []*model.Feed{feed}, nil
		},
	}

	var calls atomic.Int64
	ingest := &mockIngest{
		ingestFunc: func(ctx context.Context, fd *model.Feed) error {
			calls.Add(1)
			return nil
		},
	}

	s := NewScheduler(repo, ingest, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.wg.Wait()

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.wg.Wait()

	if calls.Load() != 2 {
		t.Errorf("ingest calls = %d, want 2", calls.Load())
	}
}

// 失敗の隔離: フィードAの失敗はフィードBのサイクルを妨げない。
func TestScheduler_RunOnce_FailureIsolation(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return []*model.Feed{
				{ID: 1, URL: "https://a.example.com/feed.xml"},
				{ID: 2, URL: "https://b.example.com/feed.xml"},
			}, nil
		},
	}

	var mu sync.Mutex
	ingested := make(map[int64]bool)
	ingest := &mockIngest{
		ingestFunc: func(ctx context.Context, fd *model.Feed) error {
			mu.Lock()
			ingested[fd.ID] = true
			mu.Unlock()
			if fd.ID == 1 {
				return model.NewConnectError(errors.New("connection refused"))
			}
			return nil
		},
	}

	s := NewScheduler(repo, ingest, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s.wg.Wait()

	if !ingested[1] || !ingested[2] {
		t.Errorf("ingested = %v, フィードAの失敗に関わらず両方実行されるべき", ingested)
	}
}

// シャットダウン: コンテキストキャンセル後は新規サイクルを発行しない。
func TestScheduler_RunOnce_StopsDispatchOnCancel(t *testing.T) {
	var buf bytes.Buffer
	feeds := makeFeeds(4)
	repo := &mockFeedRepo{
		listDueFunc: func(ctx context.Context) ([]*model.Feed, error) {
			return feeds, nil
		},
	}

	var calls atomic.Int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	ingest := &mockIngest{
		ingestFunc: func(ctx context.Context, fd *model.Feed) error {
			calls.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	}

	// 並列数1: 最初のフィードがセマフォを占有する
	s := NewScheduler(repo, ingest, newTestLogger(&buf), 1)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.RunOnce(ctx)
	}()

	<-started
	cancel()

	if err := <-done; err == nil {
		t.Error("キャンセル中のRunOnceはコンテキストエラーを返すべき")
	}

	close(release)
	s.wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("ingest calls = %d, キャンセル後の新規発行は行われない", calls.Load())
	}
}
