package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mbuesch/feedreaders/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// ListByFeed はフィードの全記事を取得する。
func (r *PostgresItemRepo) ListByFeed(ctx context.Context, feedID int64) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, guid, title, summary, link, author,
		        published_at, first_seen_at, last_updated_at, seen, highlighted
		 FROM items
		 WHERE feed_id = $1`,
		feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item := &model.Item{}
		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Summary,
			&item.Link, &item.Author, &item.PublishedAt,
			&item.FirstSeenAt, &item.LastUpdatedAt, &item.Seen, &item.Highlighted,
		); err != nil {
			return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// InsertTx は新規記事をトランザクション内で挿入する。
func (r *PostgresItemRepo) InsertTx(ctx context.Context, tx *sql.Tx, item *model.Item) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO items (feed_id, guid, title, summary, link, author,
		                    published_at, first_seen_at, last_updated_at, seen, highlighted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		item.FeedID, item.GUID, item.Title, item.Summary, item.Link, item.Author,
		item.PublishedAt, item.FirstSeenAt, item.LastUpdatedAt, item.Seen, item.Highlighted,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}
	return nil
}

// UpdateTx は既存記事の内容をトランザクション内で上書き更新する。
// first_seen_atは不変のため書き換えない。
// seen/highlightedはポリシーが書き込みを決定した場合のみ更新する。
// CASE式で行の現在値を参照するため、reconcile開始前のスナップショットが
// 古くても表示層による既読操作が巻き戻されることはない。
func (r *PostgresItemRepo) UpdateTx(ctx context.Context, tx *sql.Tx, item *model.Item, flags ItemFlagUpdate) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE items SET
		    title = $2, summary = $3, link = $4, author = $5,
		    published_at = $6, last_updated_at = $7,
		    seen = CASE WHEN $10 THEN $8 ELSE seen END,
		    highlighted = CASE WHEN $11 THEN $9 ELSE highlighted END
		 WHERE id = $1`,
		item.ID, item.Title, item.Summary, item.Link, item.Author,
		item.PublishedAt, item.LastUpdatedAt, item.Seen, item.Highlighted,
		flags.WriteSeen, flags.WriteHighlighted,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteAbsentBeforeTx はライブフィードに存在しない古い記事を削除する。
// keepGUIDsに含まれず、published_atがcutoffより古い記事が対象。
func (r *PostgresItemRepo) DeleteAbsentBeforeTx(ctx context.Context, tx *sql.Tx, feedID int64, keepGUIDs []string, cutoff time.Time) (int64, error) {
	// pq.ArrayでguidリストをANY句に渡す。空リストでも有効なSQLになる。
	result, err := tx.ExecContext(ctx,
		`DELETE FROM items
		 WHERE feed_id = $1
		   AND published_at < $2
		   AND NOT (guid = ANY($3))`,
		feedID, cutoff, pq.Array(keepGUIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
