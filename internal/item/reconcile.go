// Package item は記事の突き合わせ（reconcile）とガベージコレクションを提供する。
package item

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
	"github.com/mbuesch/feedreaders/internal/repository"
	"github.com/mbuesch/feedreaders/internal/security"
)

// Outcome は1フィード分のreconcile結果を表す。
type Outcome struct {
	Inserted  int
	Updated   int
	Unchanged int

	// Deleted はガベージコレクションで削除された記事数。
	Deleted int64

	// Changed は可視状態に変化があったことを示す。
	// trueのサイクルに対してのみリビジョンカウンタをインクリメントする。
	// 記事の挿入・更新・削除とフィードタイトルの変更を可視変化として扱う。
	// GCによる削除のみのサイクルも、問い合わせ可能な記事集合が変わるため
	// 可視変化に含める（表示層は再描画が必要になる）。
	Changed bool
}

// ReconcileConfig はreconcile処理の設定を保持する。
type ReconcileConfig struct {
	// GCAgeOffset はGC削除のしきい値。ライブフィード中の最新公開日時から
	// この期間より古く、かつライブフィードに存在しない記事を削除する。
	GCAgeOffset time.Duration
}

// ReconcileService はパース済み記事と保存済み記事の突き合わせを行う。
// 記事を新規/更新/変化なしに分類し、ハイライトポリシーを適用した上で、
// 1フィード分の書き込みを単一トランザクションで永続化する。
// reconcile成功後、同一トランザクション内でガベージコレクションを実行する。
type ReconcileService struct {
	txBeginner repository.TxBeginner
	feedRepo   repository.FeedRepository
	itemRepo   repository.ItemRepository
	sanitizer  security.SummarySanitizerService
	policy     *HighlightPolicy
	config     ReconcileConfig
	logger     *slog.Logger
}

// NewReconcileService はReconcileServiceの新しいインスタンスを生成する。
func NewReconcileService(
	txBeginner repository.TxBeginner,
	feedRepo repository.FeedRepository,
	itemRepo repository.ItemRepository,
	sanitizer security.SummarySanitizerService,
	policy *HighlightPolicy,
	config ReconcileConfig,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		txBeginner: txBeginner,
		feedRepo:   feedRepo,
		itemRepo:   itemRepo,
		sanitizer:  sanitizer,
		policy:     policy,
		config:     config,
		logger:     logger,
	}
}

// Reconcile はパース済みフィードを保存済み状態と突き合わせて永続化する。
// フェッチとパースの両方が成功したサイクルからのみ呼び出すこと。
// 失敗時はトランザクション全体がロールバックされ、部分的な書き込みは残らない。
func (s *ReconcileService) Reconcile(
	ctx context.Context,
	fd *model.Feed,
	parsed *model.ParsedFeed,
	now time.Time,
) (*Outcome, error) {
	stored, err := s.itemRepo.ListByFeed(ctx, fd.ID)
	if err != nil {
		return nil, model.NewStorageError(err)
	}

	byGUID := make(map[string]*model.Item, len(stored))
	for _, it := range stored {
		byGUID[it.GUID] = it
	}

	tx, err := s.txBeginner.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("トランザクション開始に失敗: %w", err))
	}
	defer tx.Rollback()

	outcome := &Outcome{}

	// フィードタイトルの更新も同一トランザクションで行う
	if parsed.Title != "" && parsed.Title != fd.Title {
		if err := s.feedRepo.UpdateTitleTx(ctx, tx, fd.ID, parsed.Title); err != nil {
			return nil, model.NewStorageError(err)
		}
		fd.Title = parsed.Title
		outcome.Changed = true
	}

	// ライブフィード内の記事識別子集合。GCの保護リストを兼ねる。
	liveGUIDs := make([]string, 0, len(parsed.Items))
	seenGUIDs := make(map[string]bool, len(parsed.Items))

	for i := range parsed.Items {
		pi := &parsed.Items[i]
		guid := pi.Identity()

		// 同一文書内の重複識別子は最初の1件のみ処理する
		if seenGUIDs[guid] {
			continue
		}
		seenGUIDs[guid] = true
		liveGUIDs = append(liveGUIDs, guid)

		summary := s.sanitizer.Sanitize(pi.Summary)

		existing, ok := byGUID[guid]
		if !ok {
			if err := s.insertNew(ctx, tx, fd.ID, pi, guid, summary, now); err != nil {
				return nil, err
			}
			outcome.Inserted++
			continue
		}

		if unchangedItem(existing, pi, summary) {
			// 変化のない記事は書き換えない（last_updated_atを汚さない）
			outcome.Unchanged++
			continue
		}

		if err := s.updateExisting(ctx, tx, existing, pi, summary, now); err != nil {
			return nil, err
		}
		outcome.Updated++
	}

	// ガベージコレクション。ライブフィードが空の場合は何も削除しない
	// （データの欠如を記事の消滅と解釈してはならない）。
	if cutoff, ok := gcCutoff(parsed.Items, s.config.GCAgeOffset); ok {
		deleted, err := s.itemRepo.DeleteAbsentBeforeTx(ctx, tx, fd.ID, liveGUIDs, cutoff)
		if err != nil {
			return nil, model.NewStorageError(err)
		}
		outcome.Deleted = deleted
	}

	if err := tx.Commit(); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("コミットに失敗: %w", err))
	}

	if outcome.Inserted > 0 || outcome.Updated > 0 || outcome.Deleted > 0 {
		outcome.Changed = true
	}

	s.logger.Info("記事のreconcileが完了しました",
		slog.Int64("feed_id", fd.ID),
		slog.Int("inserted", outcome.Inserted),
		slog.Int("updated", outcome.Updated),
		slog.Int("unchanged", outcome.Unchanged),
		slog.Int64("gc_deleted", outcome.Deleted),
		slog.Bool("changed", outcome.Changed),
	)

	return outcome, nil
}

// insertNew は新規記事を構築してトランザクション内で挿入する。
func (s *ReconcileService) insertNew(
	ctx context.Context,
	tx *sql.Tx,
	feedID int64,
	pi *model.ParsedItem,
	guid, summary string,
	now time.Time,
) error {
	it := &model.Item{
		FeedID:        feedID,
		GUID:          guid,
		Title:         pi.Title,
		Summary:       summary,
		Link:          pi.Link,
		Author:        pi.Author,
		PublishedAt:   pi.PublishedAt,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}

	s.policy.Apply(it, true)

	if err := s.itemRepo.InsertTx(ctx, tx, it); err != nil {
		return model.NewStorageError(err)
	}
	return nil
}

// updateExisting は既存記事の内容を更新してトランザクション内で書き込む。
// first_seen_atは不変。seen/highlightedはポリシーが値を決定した場合のみ
// 書き込み、それ以外はデータベース上の現在値を維持する（reconcile開始前の
// スナップショットには表示層の既読操作が反映されていない可能性がある）。
func (s *ReconcileService) updateExisting(
	ctx context.Context,
	tx *sql.Tx,
	existing *model.Item,
	pi *model.ParsedItem,
	summary string,
	now time.Time,
) error {
	existing.Title = pi.Title
	existing.Summary = summary
	existing.Link = pi.Link
	existing.Author = pi.Author
	existing.PublishedAt = pi.PublishedAt
	existing.LastUpdatedAt = now

	seenSet, highlightedSet := s.policy.Apply(existing, false)
	flags := repository.ItemFlagUpdate{
		WriteSeen:        seenSet,
		WriteHighlighted: highlightedSet,
	}

	if err := s.itemRepo.UpdateTx(ctx, tx, existing, flags); err != nil {
		return model.NewStorageError(err)
	}
	return nil
}

// unchangedItem は保存済み記事とパース済み記事の間に意味のある差分がないかを判定する。
func unchangedItem(existing *model.Item, pi *model.ParsedItem, sanitizedSummary string) bool {
	return existing.Title == pi.Title &&
		existing.Summary == sanitizedSummary &&
		existing.Link == pi.Link &&
		existing.Author == pi.Author &&
		existing.PublishedAt.Equal(pi.PublishedAt)
}

// gcCutoff はGC削除のしきい値日時を計算する。
// ライブフィード中の最新公開日時からオフセットを引いた値を返す。
// ライブフィードが空の場合はfalseを返し、GCは実行されない。
func gcCutoff(items []model.ParsedItem, offset time.Duration) (time.Time, bool) {
	if len(items) == 0 {
		return time.Time{}, false
	}

	newest := items[0].PublishedAt
	for _, it := range items[1:] {
		if it.PublishedAt.After(newest) {
			newest = it.PublishedAt
		}
	}

	return newest.Add(-offset), true
}
