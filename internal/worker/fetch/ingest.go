package fetch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbuesch/feedreaders/internal/item"
	"github.com/mbuesch/feedreaders/internal/model"
	"github.com/mbuesch/feedreaders/internal/repository"
)

// ParserService はフィードドキュメントのパースを行うインターフェース。
type ParserService interface {
	Parse(data []byte, now time.Time) (*model.ParsedFeed, error)
}

// ReconcilerService は取得済み記事と保存済み記事の突き合わせを行うインターフェース。
type ReconcilerService interface {
	Reconcile(ctx context.Context, fd *model.Feed, parsed *model.ParsedFeed, now time.Time) (*item.Outcome, error)
}

// RevisionBumper はリビジョンカウンタのインクリメントを行うインターフェース。
type RevisionBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// IngestMetrics は取り込みサイクルのメトリクス記録インターフェース。
type IngestMetrics interface {
	RecordFetchSuccess()
	RecordFetchFailure(kind string)
	RecordParseFailure()
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsInserted(count int)
	RecordItemsUpdated(count int)
	RecordGCDeleted(count int64)
	SetRevision(value int64)
}

// IngestorConfig はIngestorの設定を保持する。
type IngestorConfig struct {
	// DefaultInterval はフィード固有の間隔が未設定の場合の巡回間隔。
	DefaultInterval time.Duration

	// SlackFraction は次回予定日時に加えるジッタの割合。[0, 1)。
	SlackFraction float64
}

// Ingestor は1フィード分の取り込みサイクルを実行する。
// フェッチ → パース → reconcile → GC の順で処理し、
// 可視変化があったサイクルに対してのみリビジョンカウンタを1回進める。
// いずれかの段階の失敗はサイクル全体を中断し、フィードのlast_errorに
// 記録した上で次回予定日時まで再試行しない。
type Ingestor struct {
	feedRepo   repository.FeedRepository
	fetcher    FetcherService
	parser     ParserService
	reconciler ReconcilerService
	revision   RevisionBumper
	metrics    IngestMetrics
	logger     *slog.Logger
	config     IngestorConfig

	rngMu sync.Mutex
	rng   *rand.Rand

	// fingerprints は前回取得時のドキュメントハッシュ（フィードIDごと）。
	// 同一ドキュメントの再パースと再reconcileを省略するためのメモリ内
	// キャッシュであり、再起動で失われても単に1回余分にreconcileされるだけ。
	fpMu         sync.Mutex
	fingerprints map[int64]string

	// pendingBumps はreconcileコミット後にリビジョン更新が失敗したフィード。
	// コミット済みの可視変化はreconcileの再実行では検出できない
	// （2回目は変化なしと判定される）ため、次サイクルでreconcile結果に
	// かかわらずリビジョン更新を再試行する。
	pbMu         sync.Mutex
	pendingBumps map[int64]bool
}

var _ IngestService = (*Ingestor)(nil)

// NewIngestor はIngestorの新しいインスタンスを生成する。
func NewIngestor(
	feedRepo repository.FeedRepository,
	fetcher FetcherService,
	parser ParserService,
	reconciler ReconcilerService,
	revision RevisionBumper,
	metrics IngestMetrics,
	logger *slog.Logger,
	config IngestorConfig,
) *Ingestor {
	return &Ingestor{
		feedRepo:     feedRepo,
		fetcher:      fetcher,
		parser:       parser,
		reconciler:   reconciler,
		revision:     revision,
		metrics:      metrics,
		logger:       logger,
		config:       config,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		fingerprints: make(map[int64]string),
		pendingBumps: make(map[int64]bool),
	}
}

// Ingest は指定フィードの取り込みサイクルを1回実行する。
// IngestServiceインターフェースを実装する。
func (g *Ingestor) Ingest(ctx context.Context, fd *model.Feed) error {
	now := time.Now()
	log := g.logger.With(
		slog.String("cycle_id", uuid.NewString()),
		slog.Int64("feed_id", fd.ID),
		slog.String("feed_url", fd.URL),
	)

	res, err := g.fetcher.Fetch(ctx, fd.URL)
	if err != nil {
		var ie *model.IngestError
		if errors.As(err, &ie) {
			// HTTP 301はフィードの恒久的な移転、410はフィードの消滅を意味する。
			// どちらも失敗として再試行し続けるのではなくフィード自体を更新する。
			switch ie.StatusCode {
			case http.StatusMovedPermanently:
				return g.relocate(ctx, log, fd, now, ie.Location)
			case http.StatusGone:
				return g.disable(ctx, log, fd, now, "フィードは恒久的に削除されました (HTTP 410)")
			}
		}
		return g.fail(ctx, log, fd, now, err)
	}

	g.metrics.RecordHTTPStatus(res.StatusCode)
	g.metrics.RecordFetchLatency(res.Duration)

	// ドキュメントが前回と同一なら、パース以降を省略して成功扱いにする。
	// ただし前サイクルで持ち越したリビジョン更新があれば先に再試行する。
	if g.sameFingerprint(fd.ID, res.Fingerprint) {
		log.Info("フィードドキュメントは前回から変化していません")
		if err := g.settlePendingBump(ctx, log, fd.ID); err != nil {
			return g.fail(ctx, log, fd, now, err)
		}
		g.metrics.RecordFetchSuccess()
		return g.succeed(ctx, log, fd, now)
	}

	parsed, err := g.parser.Parse(res.Body, now)
	if err != nil {
		g.metrics.RecordParseFailure()
		return g.fail(ctx, log, fd, now, err)
	}

	outcome, err := g.reconciler.Reconcile(ctx, fd, parsed, now)
	if err != nil {
		return g.fail(ctx, log, fd, now, err)
	}

	g.metrics.RecordItemsInserted(outcome.Inserted)
	g.metrics.RecordItemsUpdated(outcome.Updated)
	g.metrics.RecordGCDeleted(outcome.Deleted)

	if outcome.Changed || g.hasPendingBump(fd.ID) {
		rev, err := g.revision.Bump(ctx)
		if err != nil {
			// reconcileはコミット済みのため、このサイクルの可視変化は
			// 次回のreconcileでは検出されない。持ち越しフラグを立てて
			// 次サイクルで必ずリビジョン更新を再試行する。
			g.markPendingBump(fd.ID)
			return g.fail(ctx, log, fd, now, model.NewStorageError(err))
		}
		g.clearPendingBump(fd.ID)
		g.metrics.SetRevision(rev)
		log.Info("リビジョンカウンタを更新しました", slog.Int64("revision", rev))
	}

	g.storeFingerprint(fd.ID, res.Fingerprint)
	g.metrics.RecordFetchSuccess()

	log.Info("取り込みサイクルが完了しました",
		slog.Int("inserted", outcome.Inserted),
		slog.Int("updated", outcome.Updated),
		slog.Int("unchanged", outcome.Unchanged),
		slog.Int64("gc_deleted", outcome.Deleted),
		slog.Bool("changed", outcome.Changed),
		slog.Float64("fetch_duration_ms", float64(res.Duration.Milliseconds())),
	)

	return g.succeed(ctx, log, fd, now)
}

// succeed はサイクル成功時のフィード状態を永続化する。
func (g *Ingestor) succeed(ctx context.Context, log *slog.Logger, fd *model.Feed, now time.Time) error {
	next := g.nextDue(now, fd)
	ApplySuccess(fd, now, next)

	if err := g.feedRepo.UpdateFetchState(ctx, fd); err != nil {
		log.Error("フィード状態の更新に失敗しました", slog.String("error", err.Error()))
		return model.NewStorageError(err)
	}
	return nil
}

// fail はサイクル失敗をフィードに記録する。記事には一切触れない。
func (g *Ingestor) fail(ctx context.Context, log *slog.Logger, fd *model.Feed, now time.Time, cause error) error {
	kind := model.KindOf(cause)
	g.metrics.RecordFetchFailure(string(kind))

	log.Warn("取り込みサイクルが失敗しました",
		slog.String("kind", string(kind)),
		slog.String("error", cause.Error()),
	)

	next := g.nextDue(now, fd)
	ApplyFailure(fd, now, cause, next)

	if err := g.feedRepo.UpdateFetchState(ctx, fd); err != nil {
		log.Error("フィード状態の更新に失敗しました", slog.String("error", err.Error()))
	}
	return cause
}

// relocate はHTTP 301を受けたフィードの保存URLを移転先に書き換える。
// Locationヘッダがない場合は移転先が不明のため、フィードを無効化する。
// 相対URLのLocationは旧URLを基準に解決する。書き換え後は即時に
// フェッチ期限到来とし、次のポーリングで新URLから取得する。
func (g *Ingestor) relocate(ctx context.Context, log *slog.Logger, fd *model.Feed, now time.Time, location string) error {
	if location == "" {
		return g.disable(ctx, log, fd, now, "フィードは移転しましたが移転先が不明です (HTTP 301, Locationなし)")
	}

	base, err := url.Parse(fd.URL)
	if err != nil {
		return g.fail(ctx, log, fd, now, model.NewConnectError(err))
	}
	ref, err := url.Parse(location)
	if err != nil {
		return g.disable(ctx, log, fd, now, "フィードの移転先URLが不正です (HTTP 301)")
	}
	newURL := base.ResolveReference(ref).String()

	log.Info("フィードURLを移転先に書き換えます",
		slog.String("new_url", newURL),
	)

	fd.URL = newURL
	fd.NextFetchAt = now
	fd.UpdatedAt = now

	if err := g.feedRepo.UpdateFetchState(ctx, fd); err != nil {
		log.Error("フィード状態の更新に失敗しました", slog.String("error", err.Error()))
		return model.NewStorageError(err)
	}
	return nil
}

// disable はフィードの巡回を恒久的に停止する。
// 消滅したフィード（HTTP 410）や移転先不明のフィードが対象。
func (g *Ingestor) disable(ctx context.Context, log *slog.Logger, fd *model.Feed, now time.Time, reason string) error {
	log.Warn("フィードを無効化します", slog.String("reason", reason))

	fd.Disabled = true
	fd.LastError = reason
	fd.UpdatedAt = now

	if err := g.feedRepo.UpdateFetchState(ctx, fd); err != nil {
		log.Error("フィード状態の更新に失敗しました", slog.String("error", err.Error()))
		return model.NewStorageError(err)
	}
	return nil
}

// settlePendingBump は前サイクルから持ち越したリビジョン更新を再試行する。
func (g *Ingestor) settlePendingBump(ctx context.Context, log *slog.Logger, feedID int64) error {
	if !g.hasPendingBump(feedID) {
		return nil
	}

	rev, err := g.revision.Bump(ctx)
	if err != nil {
		return model.NewStorageError(err)
	}

	g.clearPendingBump(feedID)
	g.metrics.SetRevision(rev)
	log.Info("持ち越していたリビジョン更新を完了しました", slog.Int64("revision", rev))
	return nil
}

// nextDue はフィードの実効間隔とジッタから次回予定日時を計算する。
func (g *Ingestor) nextDue(attempt time.Time, fd *model.Feed) time.Time {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return ComputeNextDue(attempt, fd.EffectiveInterval(g.config.DefaultInterval), g.config.SlackFraction, g.rng)
}

func (g *Ingestor) sameFingerprint(feedID int64, fingerprint string) bool {
	g.fpMu.Lock()
	defer g.fpMu.Unlock()
	return g.fingerprints[feedID] == fingerprint
}

func (g *Ingestor) storeFingerprint(feedID int64, fingerprint string) {
	g.fpMu.Lock()
	defer g.fpMu.Unlock()
	g.fingerprints[feedID] = fingerprint
}

func (g *Ingestor) hasPendingBump(feedID int64) bool {
	g.pbMu.Lock()
	defer g.pbMu.Unlock()
	return g.pendingBumps[feedID]
}

func (g *Ingestor) markPendingBump(feedID int64) {
	g.pbMu.Lock()
	defer g.pbMu.Unlock()
	g.pendingBumps[feedID] = true
}

func (g *Ingestor) clearPendingBump(feedID int64) {
	g.pbMu.Lock()
	defer g.pbMu.Unlock()
	delete(g.pendingBumps, feedID)
}
