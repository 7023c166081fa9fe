// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	ObserveSignIn(outcome string)
	ObserveClaim(outcome string)
	AddReclaimTransfers(n int)
	ObserveOracleLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn           *prometheus.CounterVec
	claim            *prometheus.CounterVec
	reclaimTransfers prometheus.Counter
	oracleLatency    prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletbind_signin_total",
			Help: "サインイン試行の結果別合計数",
		}, []string{"outcome"}),
		claim: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletbind_claim_total",
			Help: "claim試行の結果別合計数",
		}, []string{"outcome"}),
		reclaimTransfers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletbind_reclaim_transfers_total",
			Help: "再claimで移管されたボット所有権の合計数",
		}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletbind_oracle_latency_seconds",
			Help:    "価格オラクル呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletbind_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletbind_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.claim,
		c.reclaimTransfers,
		c.oracleLatency,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// ObserveSignIn はサインイン試行の結果を記録する。
func (c *Collector) ObserveSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// ObserveClaim はclaim試行の結果を記録する。
func (c *Collector) ObserveClaim(outcome string) {
	c.claim.WithLabelValues(outcome).Inc()
}

// AddReclaimTransfers は移管されたボット数を記録する。
func (c *Collector) AddReclaimTransfers(n int) {
	c.reclaimTransfers.Add(float64(n))
}

// ObserveOracleLatency はオラクル呼び出しのレイテンシを記録する。
func (c *Collector) ObserveOracleLatency(duration time.Duration) {
	c.oracleLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
