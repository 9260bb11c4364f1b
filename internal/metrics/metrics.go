// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リモートクライアント、リポジトリ、ViewModel、ワーカーから利用する。
type MetricsCollector interface {
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
	RecordRemoteRequest(resource, method, outcome string, duration time.Duration)
	RecordStateTransition(resource, status string)
	RecordWorkRun(name, result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	remoteRequests   *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec
	workRuns         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbook_cache_hits_total",
			Help: "ローカルストアから応答した読み取りの合計数",
		}, []string{"resource"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbook_cache_misses_total",
			Help: "ローカルストアが空でリモートから取得した読み取りの合計数",
		}, []string{"resource"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbook_remote_requests_total",
			Help: "リモートサービスへのリクエスト数（結果別）",
		}, []string{"resource", "method", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syncbook_remote_request_duration_seconds",
			Help:    "リモートサービスへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbook_state_transitions_total",
			Help: "ViewModelが公開した状態の数（状態別）",
		}, []string{"resource", "status"}),
		workRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbook_work_runs_total",
			Help: "定期実行ワークの実行数（結果別）",
		}, []string{"name", "result"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.remoteRequests,
		c.remoteLatency,
		c.stateTransitions,
		c.workRuns,
	)

	return c
}

// RecordCacheHit はローカルストアからの応答を記録する。
func (c *Collector) RecordCacheHit(resource string) {
	c.cacheHits.WithLabelValues(resource).Inc()
}

// RecordCacheMiss はリモートへのフォールバックを記録する。
func (c *Collector) RecordCacheMiss(resource string) {
	c.cacheMisses.WithLabelValues(resource).Inc()
}

// RecordRemoteRequest はリモートリクエストの結果とレイテンシを記録する。
// outcomeは "ok", "not_found", "status_error", "network_error", "circuit_open" のいずれか。
func (c *Collector) RecordRemoteRequest(resource, method, outcome string, duration time.Duration) {
	c.remoteRequests.WithLabelValues(resource, method, outcome).Inc()
	c.remoteLatency.WithLabelValues(resource, method).Observe(duration.Seconds())
}

// RecordStateTransition はViewModelの状態公開を記録する。
func (c *Collector) RecordStateTransition(resource, status string) {
	c.stateTransitions.WithLabelValues(resource, status).Inc()
}

// RecordWorkRun はワーク実行の結果を記録する。
// resultは "succeeded", "failed", "deferred" のいずれか。
func (c *Collector) RecordWorkRun(name, result string) {
	c.workRuns.WithLabelValues(name, result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
