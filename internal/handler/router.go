// Package handler はデーモンの状態公開用HTTPエンドポイントを提供する。
// 提示層（Web UI）は含まない。ヘルスチェック、リビジョンカウンタの読み取り、
// Prometheusスクレイプのみを公開する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbuesch/feedreaders/internal/metrics"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RevisionReader はリビジョンカウンタの読み取りインターフェース。
// 読み取りは取り込みの進行をブロックしてはならない。
type RevisionReader interface {
	Read() int64
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	Revision      RevisionReader
	Gatherer      prometheus.Gatherer
}

// NewRouter は状態公開エンドポイントのルーティングを構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	r.Get("/revision", newRevisionHandler(deps.Revision))
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}

// newRevisionHandler は現在のリビジョンカウンタ値を返すハンドラーを返す。
// 提示層はこの値をポーリングし、変化を検知したときのみ再取得を行う。
func newRevisionHandler(revision RevisionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"revision": revision.Read(),
		})
	}
}
