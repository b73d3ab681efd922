package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRevisionRepo はPostgreSQLを使用したリビジョンカウンタリポジトリ。
// revisionテーブルは常に1行（id = 1）のみを持つ。
type PostgresRevisionRepo struct {
	db *sql.DB
}

// NewPostgresRevisionRepo はPostgresRevisionRepoを生成する。
func NewPostgresRevisionRepo(db *sql.DB) *PostgresRevisionRepo {
	return &PostgresRevisionRepo{db: db}
}

// Current は現在のリビジョン値を取得する。
func (r *PostgresRevisionRepo) Current(ctx context.Context) (int64, error) {
	var value int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM revision WHERE id = 1`,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("リビジョン値の取得に失敗しました: %w", err)
	}
	return value, nil
}

// Increment はリビジョン値をアトミックにインクリメントし、新しい値を返す。
// 単一のUPDATE文で行うためフィードスコープのトランザクションとは独立しており、
// 並行するサイクル間でも値が欠番・重複することはない。
func (r *PostgresRevisionRepo) Increment(ctx context.Context) (int64, error) {
	var value int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE revision SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("リビジョン値のインクリメントに失敗しました: %w", err)
	}
	return value, nil
}

// compile-time interface check
var _ RevisionRepository = (*PostgresRevisionRepo)(nil)
