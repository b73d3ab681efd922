package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// mockExecutor はExecutorのテスト用モック。
type mockExecutor struct {
	execFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	queries  []string
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.queries = append(m.queries, query)
	if m.execFunc != nil {
		return m.execFunc(ctx, query, args...)
	}
	return driver.RowsAffected(0), nil
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestOrphanSweepJob_Run_DeletesOrphans(t *testing.T) {
	exec := &mockExecutor{
		execFunc: func(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
			return driver.RowsAffected(3), nil
		},
	}

	job := NewOrphanSweepJob(exec, newTestLogger())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(exec.queries) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(exec.queries))
	}
	if !strings.Contains(exec.queries[0], "feed_id NOT IN") {
		t.Errorf("query = %q, 孤児記事の削除クエリであるべき", exec.queries[0])
	}
}

func TestOrphanSweepJob_Run_NoOrphansIsIdempotent(t *testing.T) {
	exec := &mockExecutor{}

	job := NewOrphanSweepJob(exec, newTestLogger())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("削除対象がなくてもエラーにならない: %v", err)
	}
}

func TestOrphanSweepJob_Run_PropagatesError(t *testing.T) {
	exec := &mockExecutor{
		execFunc: func(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
			return nil, errors.New("db down")
		},
	}

	job := NewOrphanSweepJob(exec, newTestLogger())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("実行失敗でエラーが返るべき")
	}
}
