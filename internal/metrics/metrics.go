// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 各ステージのRecorderインターフェースを満たす。
type Collector struct {
	feeds         *prometheus.CounterVec
	entries       *prometheus.CounterVec
	extractions   *prometheus.CounterVec
	scores        *prometheus.CounterVec
	scripts       *prometheus.CounterVec
	oracleErrors  *prometheus.CounterVec
	oracleLatency prometheus.Histogram
	retention     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_feed_fetch_total",
			Help: "フィード取得の結果別の合計数",
		}, []string{"category", "status"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_harvest_entries_total",
			Help: "収集したエントリの結果別の合計数",
		}, []string{"category", "outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_article_extraction_total",
			Help: "本文抽出の結果別の合計数",
		}, []string{"outcome"}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_scores_total",
			Help: "採点の結果別の合計数",
		}, []string{"category", "outcome"}),
		scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_scripts_total",
			Help: "原稿生成の結果別の合計数",
		}, []string{"category", "outcome"}),
		oracleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_oracle_errors_total",
			Help: "オラクル呼び出しのエラー種別ごとの合計数",
		}, []string{"kind"}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rundown_oracle_latency_seconds",
			Help:    "オラクル呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		retention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_retention_deleted_total",
			Help: "保持期間の削除で消えた行のテーブル別の合計数",
		}, []string{"table"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rundown_stage_duration_seconds",
			Help:    "パイプラインステージの所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rundown_stage_failures_total",
			Help: "パイプラインステージの失敗数",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		c.feeds,
		c.entries,
		c.extractions,
		c.scores,
		c.scripts,
		c.oracleErrors,
		c.oracleLatency,
		c.retention,
		c.stageDuration,
		c.stageFailures,
	)

	return c
}

// ObserveFeed はフィード取得の結果を記録する。
func (c *Collector) ObserveFeed(category string, status string) {
	c.feeds.WithLabelValues(category, status).Inc()
}

// ObserveEntry はエントリの収集結果を記録する。
func (c *Collector) ObserveEntry(category string, outcome string) {
	c.entries.WithLabelValues(category, outcome).Inc()
}

// ObserveExtraction は本文抽出の結果を記録する。
func (c *Collector) ObserveExtraction(outcome string) {
	c.extractions.WithLabelValues(outcome).Inc()
}

// ObserveScore は採点結果を記録する。
func (c *Collector) ObserveScore(category string, outcome string) {
	c.scores.WithLabelValues(category, outcome).Inc()
}

// ObserveScript は原稿生成の結果を記録する。
func (c *Collector) ObserveScript(category string, outcome string) {
	c.scripts.WithLabelValues(category, outcome).Inc()
}

// ObserveOracleCall はオラクル呼び出しのレイテンシを記録する。kindが空でなければエラーとして数える。
func (c *Collector) ObserveOracleCall(kind string, elapsed time.Duration) {
	c.oracleLatency.Observe(elapsed.Seconds())
	if kind != "" {
		c.oracleErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveRetention は保持期間の削除件数を記録する。
func (c *Collector) ObserveRetention(table string, deleted int64) {
	c.retention.WithLabelValues(table).Add(float64(deleted))
}

// ObserveStage はパイプラインステージの所要時間を記録する。
func (c *Collector) ObserveStage(stage string, elapsed time.Duration, failed bool) {
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		c.stageFailures.WithLabelValues(stage).Inc()
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// バッチコマンドの実行中にスクレイプさせる場合に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
