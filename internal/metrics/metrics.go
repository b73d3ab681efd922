// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は取り込みサイクルのメトリクスを収集するPrometheus実装。
type Collector struct {
	fetchSuccess  prometheus.Counter
	fetchFail     *prometheus.CounterVec
	parseFail     prometheus.Counter
	httpStatus    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	itemsInserted prometheus.Counter
	itemsUpdated  prometheus.Counter
	gcDeleted     prometheus.Counter
	revision      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedreaders_fetch_success_total",
			Help: "取り込みサイクル成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedreaders_fetch_fail_total",
			Help: "取り込みサイクル失敗の合計数（失敗分類別）",
		}, []string{"kind"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedreaders_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedreaders_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedreaders_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedreaders_items_inserted_total",
			Help: "新規挿入された記事の合計数",
		}),
		itemsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedreaders_items_updated_total",
			Help: "更新された記事の合計数",
		}),
		gcDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedreaders_gc_deleted_total",
			Help: "ガベージコレクションで削除された記事の合計数",
		}),
		revision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedreaders_revision",
			Help: "現在のリビジョンカウンタ値",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.itemsInserted,
		c.itemsUpdated,
		c.gcDeleted,
		c.revision,
	)

	return c
}

// RecordFetchSuccess はサイクル成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はサイクル失敗を失敗分類付きで記録する。
func (c *Collector) RecordFetchFailure(kind string) {
	c.fetchFail.WithLabelValues(kind).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure() {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItemsInserted は新規挿入された記事数を記録する。
func (c *Collector) RecordItemsInserted(count int) {
	c.itemsInserted.Add(float64(count))
}

// RecordItemsUpdated は更新された記事数を記録する。
func (c *Collector) RecordItemsUpdated(count int) {
	c.itemsUpdated.Add(float64(count))
}

// RecordGCDeleted はGCで削除された記事数を記録する。
func (c *Collector) RecordGCDeleted(count int64) {
	c.gcDeleted.Add(float64(count))
}

// SetRevision は現在のリビジョンカウンタ値を記録する。
func (c *Collector) SetRevision(value int64) {
	c.revision.Set(float64(value))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
