// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
)

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Feed, error)

	// Create はフィードを作成し、採番されたIDをfeed.IDに設定する。
	// フィードの登録は管理操作の境界であり、デーモン本体は呼び出さない。
	Create(ctx context.Context, feed *model.Feed) error

	// ListDue はフェッチ期限が到来したフィードをnext_fetch_at昇順で取得する。
	// disabled = FALSE かつ next_fetch_at <= now() のフィードが対象。
	// 未フェッチのフィード（next_fetch_at = epoch）は常に期限到来として扱われる。
	ListDue(ctx context.Context) ([]*model.Feed, error)

	// UpdateTitleTx はフィードの表示タイトルをトランザクション内で更新する。
	UpdateTitleTx(ctx context.Context, tx *sql.Tx, feedID int64, title string) error

	// UpdateFetchState はサイクル完了後のフィード状態を更新する。
	// url、last_fetch_at、last_error、next_fetch_at、disabledを書き込む。
	UpdateFetchState(ctx context.Context, feed *model.Feed) error
}

// ItemFlagUpdate は記事更新時にseen/highlightedを書き込むかどうかの指定。
// ハイライトポリシーが決定しなかったフラグは書き込まず、データベース上の
// 現在値を維持する。表示層の既読操作が取り込みサイクルと競合しても、
// ポリシーが現状維持とした記事のフラグが巻き戻されることはない。
type ItemFlagUpdate struct {
	WriteSeen        bool
	WriteHighlighted bool
}

// ItemRepository は記事データの永続化インターフェース。
// 書き込みはすべてサイクル単位のトランザクション内で行う。
type ItemRepository interface {
	// ListByFeed はフィードの全記事を取得する。reconcile時の突き合わせに使用する。
	ListByFeed(ctx context.Context, feedID int64) ([]*model.Item, error)

	// InsertTx は新規記事をトランザクション内で挿入する。
	InsertTx(ctx context.Context, tx *sql.Tx, item *model.Item) error

	// UpdateTx は既存記事の内容をトランザクション内で上書き更新する。
	// seen/highlightedはflagsで書き込みが指定されたもののみ更新する。
	UpdateTx(ctx context.Context, tx *sql.Tx, item *model.Item, flags ItemFlagUpdate) error

	// DeleteAbsentBeforeTx はライブフィードに存在しない古い記事を削除する。
	// keepGUIDsに含まれず、published_atがcutoffより古い記事が対象。
	// 削除件数を返す。
	DeleteAbsentBeforeTx(ctx context.Context, tx *sql.Tx, feedID int64, keepGUIDs []string, cutoff time.Time) (int64, error)
}

// RevisionRepository はリビジョンカウンタの永続化インターフェース。
type RevisionRepository interface {
	// Current は現在のリビジョン値を取得する。
	Current(ctx context.Context) (int64, error)

	// Increment はリビジョン値をアトミックにインクリメントし、新しい値を返す。
	// フィードスコープのトランザクションからは独立した短い操作として実行される。
	Increment(ctx context.Context) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
