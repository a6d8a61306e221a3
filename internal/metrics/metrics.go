// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作の結果ラベル。失敗時はエラー種別名を使う。
const OutcomeOK = "ok"

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー層とクリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordTokenIssued()
	RecordAuthOutcome(op, outcome string)
	RecordTokensPruned(count int64)
	RecordHTTPStatus(statusCode int)
	ObserveStoreOp(table, op string, duration time.Duration, err error)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokensIssued  prometheus.Counter
	authOutcomes  *prometheus.CounterVec
	tokensPruned  prometheus.Counter
	httpStatus    *prometheus.CounterVec
	httpLatency   prometheus.Histogram
	storeLatency  *prometheus.HistogramVec
	storeFailures *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilda_tokens_issued_total",
			Help: "発行されたトークンの合計数",
		}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilda_auth_outcomes_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"op", "outcome"}),
		tokensPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilda_tokens_pruned_total",
			Help: "クリーンアップで削除された期限切れトークンの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilda_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilda_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tilda_store_op_duration_seconds",
			Help:    "レコードストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"table", "op"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilda_store_op_failures_total",
			Help: "失敗したレコードストア操作の合計数",
		}, []string{"table", "op"}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.authOutcomes,
		c.tokensPruned,
		c.httpStatus,
		c.httpLatency,
		c.storeLatency,
		c.storeFailures,
	)

	return c
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordAuthOutcome は認証操作の結果を記録する。
func (c *Collector) RecordAuthOutcome(op, outcome string) {
	c.authOutcomes.WithLabelValues(op, outcome).Inc()
}

// RecordTokensPruned は削除された期限切れトークン数を記録する。
func (c *Collector) RecordTokensPruned(count int64) {
	c.tokensPruned.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveStoreOp はレコードストア操作のレイテンシと失敗を記録する。
// repository.InstrumentedStoreから呼ばれる。
func (c *Collector) ObserveStoreOp(table, op string, duration time.Duration, err error) {
	c.storeLatency.WithLabelValues(table, op).Observe(duration.Seconds())
	if err != nil {
		c.storeFailures.WithLabelValues(table, op).Inc()
	}
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.RecordHTTPStatus(status)
		c.httpLatency.Observe(time.Since(start).Seconds())
	})
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
