// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// feed、queue、pointsの各パッケージのRecorderを満たす。
type Collector struct {
	feedFetch      *prometheus.CounterVec
	feedLatency    *prometheus.HistogramVec
	articlesParsed *prometheus.CounterVec
	queueMessages  *prometheus.CounterVec
	pointsAwarded  prometheus.Counter
	conversions    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_feed_fetch_total",
			Help: "ソース別・結果別のフィード取得数",
		}, []string{"source", "result"}),
		feedLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsroom_feed_fetch_duration_seconds",
			Help:    "ソース別のフィード取得時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		articlesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_articles_parsed_total",
			Help: "ソース別の抽出記事数",
		}, []string{"source"}),
		queueMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_queue_messages_total",
			Help: "送信キューの処理結果別メッセージ数",
		}, []string{"outcome"}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsroom_points_awarded_total",
			Help: "付与したポイントの合計",
		}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_conversions_total",
			Help: "結果別のポイント換算リクエスト数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.feedFetch,
		c.feedLatency,
		c.articlesParsed,
		c.queueMessages,
		c.pointsAwarded,
		c.conversions,
		c.httpStatus,
	)

	return c
}

// RecordFeedFetch はフィード取得の結果と所要時間を記録する。
func (c *Collector) RecordFeedFetch(source string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.feedFetch.WithLabelValues(source, result).Inc()
	c.feedLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordArticlesParsed は抽出した記事数を記録する。
func (c *Collector) RecordArticlesParsed(source string, count int) {
	c.articlesParsed.WithLabelValues(source).Add(float64(count))
}

func (c *Collector) RecordMessageDelivered() {
	c.queueMessages.WithLabelValues("delivered").Inc()
}

func (c *Collector) RecordMessageRetried() {
	c.queueMessages.WithLabelValues("retried").Inc()
}

func (c *Collector) RecordMessageFailed() {
	c.queueMessages.WithLabelValues("failed").Inc()
}

// RecordPointsAwarded は付与したポイントを記録する。
func (c *Collector) RecordPointsAwarded(amount int64) {
	c.pointsAwarded.Add(float64(amount))
}

// RecordConversion は換算リクエストの結果を記録する。
// outcomeは"accepted"または拒否理由。
func (c *Collector) RecordConversion(outcome string) {
	c.conversions.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスが単独でスクレイプを受ける場合に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
