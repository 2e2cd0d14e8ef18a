// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層から利用する。
type MetricsCollector interface {
	RecordSubmission(commentType string)
	RecordModeration(outcome string)
	RecordPublishFailure()
	RecordNotifyFailure()
	RecordPublishLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions    *prometheus.CounterVec
	moderations    *prometheus.CounterVec
	publishFail    prometheus.Counter
	notifyFail     prometheus.Counter
	publishLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commentq_submissions_total",
			Help: "受け付けた投稿の合計数（種別ラベル付き）",
		}, []string{"type"}),
		moderations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commentq_moderations_total",
			Help: "モデレーション判定の合計数（結果ラベル付き）",
		}, []string{"outcome"}),
		publishFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentq_publish_fail_total",
			Help: "リポジトリへのコメント公開失敗の合計数",
		}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentq_notify_fail_total",
			Help: "メール通知失敗の合計数",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commentq_publish_latency_seconds",
			Help:    "コメント公開のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.submissions,
		c.moderations,
		c.publishFail,
		c.notifyFail,
		c.publishLatency,
	)

	return c
}

// RecordSubmission は投稿の受け付けを種別（comment/mention）とともに記録する。
func (c *Collector) RecordSubmission(commentType string) {
	c.submissions.WithLabelValues(commentType).Inc()
}

// RecordModeration はモデレーション判定を結果（approved/rejected）とともに記録する。
func (c *Collector) RecordModeration(outcome string) {
	c.moderations.WithLabelValues(outcome).Inc()
}

// RecordPublishFailure は公開失敗を記録する。
func (c *Collector) RecordPublishFailure() {
	c.publishFail.Inc()
}

// RecordNotifyFailure は通知失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFail.Inc()
}

// RecordPublishLatency は公開処理のレイテンシを記録する。
func (c *Collector) RecordPublishLatency(duration time.Duration) {
	c.publishLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
