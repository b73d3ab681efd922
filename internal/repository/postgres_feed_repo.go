package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, url, title, refresh_interval_seconds, last_fetch_at,
	last_error, next_fetch_at, disabled, created_at, updated_at`

// scanFeed は1行をmodel.Feedに読み取る。
func scanFeed(scan func(dest ...any) error) (*model.Feed, error) {
	feed := &model.Feed{}
	var intervalSeconds sql.NullInt64
	var lastFetchAt sql.NullTime

	if err := scan(
		&feed.ID, &feed.URL, &feed.Title, &intervalSeconds, &lastFetchAt,
		&feed.LastError, &feed.NextFetchAt, &feed.Disabled,
		&feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if intervalSeconds.Valid {
		d := time.Duration(intervalSeconds.Int64) * time.Second
		feed.RefreshInterval = &d
	}
	if lastFetchAt.Valid {
		t := lastFetchAt.Time
		feed.LastFetchAt = &t
	}

	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id int64) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id,
	)

	feed, err := scanFeed(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	return feed, nil
}

// Create はフィードを作成し、採番されたIDをfeed.IDに設定する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	var intervalSeconds sql.NullInt64
	if feed.RefreshInterval != nil {
		intervalSeconds = sql.NullInt64{Int64: int64(feed.RefreshInterval.Seconds()), Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (url, title, refresh_interval_seconds, last_error,
		                    next_fetch_at, disabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 RETURNING id`,
		feed.URL, feed.Title, intervalSeconds, feed.LastError,
		feed.NextFetchAt, feed.Disabled,
	).Scan(&feed.ID)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// ListDue はフェッチ期限が到来したフィードをnext_fetch_at昇順で取得する。
func (r *PostgresFeedRepo) ListDue(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+`
		 FROM feeds
		 WHERE next_fetch_at <= now()
		   AND NOT disabled
		 ORDER BY next_fetch_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// UpdateTitleTx はフィードの表示タイトルをトランザクション内で更新する。
func (r *PostgresFeedRepo) UpdateTitleTx(ctx context.Context, tx *sql.Tx, feedID int64, title string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE feeds SET title = $2, updated_at = now() WHERE id = $1`,
		feedID, title,
	)
	if err != nil {
		return fmt.Errorf("フィードタイトルの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateFetchState はサイクル完了後のフィード状態を更新する。
// HTTP 301/410の処理で書き換わるurlとdisabledも取り込みサイクルが
// 所有する列のためここで永続化する。
func (r *PostgresFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	var lastFetchAt sql.NullTime
	if feed.LastFetchAt != nil {
		lastFetchAt = sql.NullTime{Time: *feed.LastFetchAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    url = $2,
		    last_fetch_at = $3,
		    last_error = $4,
		    next_fetch_at = $5,
		    disabled = $6,
		    updated_at = now()
		 WHERE id = $1`,
		feed.ID, feed.URL, lastFetchAt, feed.LastError, feed.NextFetchAt, feed.Disabled,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
