// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 利用側（購入フロー・スイープ・一斉送信）はそれぞれ必要なメソッドだけを
// 持つ消費側インターフェースを宣言し、本実装を注入する。
type Collector struct {
	purchases       *prometheus.CounterVec
	purchaseFails   *prometheus.CounterVec
	revenue         prometheus.Counter
	refunds         prometheus.Counter
	issuanceLatency prometheus.Histogram
	issuanceFails   prometheus.Counter
	sweepRevoked    prometheus.Counter
	remindersSent   prometheus.Counter
	broadcastSent   prometheus.Counter
	broadcastFailed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packgate_purchases_total",
			Help: "スコープ別の購入完了の合計数",
		}, []string{"scope"}),
		purchaseFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packgate_purchase_failures_total",
			Help: "理由別の購入失敗の合計数",
		}, []string{"reason"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_revenue_total",
			Help: "購入による売上の合計（最小通貨単位）",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_refunds_total",
			Help: "補償返金の合計額（最小通貨単位）",
		}),
		issuanceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "packgate_issuance_latency_seconds",
			Help:    "招待リンク発行のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		issuanceFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_issuance_failures_total",
			Help: "招待リンク発行失敗の合計数",
		}),
		sweepRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_sweep_revocations_total",
			Help: "スイープにより失効したグラントの合計数",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_reminders_sent_total",
			Help: "送信された期限リマインダーの合計数",
		}),
		broadcastSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_broadcast_sent_total",
			Help: "一斉送信の成功数",
		}),
		broadcastFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packgate_broadcast_failed_total",
			Help: "一斉送信の失敗数",
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.purchaseFails,
		c.revenue,
		c.refunds,
		c.issuanceLatency,
		c.issuanceFails,
		c.sweepRevoked,
		c.remindersSent,
		c.broadcastSent,
		c.broadcastFailed,
	)

	return c
}

// RecordPurchase は購入完了と売上を記録する。
func (c *Collector) RecordPurchase(scope string, amount int64) {
	c.purchases.WithLabelValues(scope).Inc()
	c.revenue.Add(float64(amount))
}

// RecordPurchaseFailure は購入失敗を理由別に記録する。
func (c *Collector) RecordPurchaseFailure(reason string) {
	c.purchaseFails.WithLabelValues(reason).Inc()
}

// RecordRefund は補償返金を記録する。
func (c *Collector) RecordRefund(amount int64) {
	c.refunds.Add(float64(amount))
}

// RecordIssuanceLatency は招待リンク発行のレイテンシを記録する。
func (c *Collector) RecordIssuanceLatency(duration time.Duration) {
	c.issuanceLatency.Observe(duration.Seconds())
}

// RecordIssuanceFailure は招待リンク発行失敗を記録する。
func (c *Collector) RecordIssuanceFailure() {
	c.issuanceFails.Inc()
}

// RecordSweepRevocation はスイープで失効したグラント数を記録する。
func (c *Collector) RecordSweepRevocation(count int) {
	c.sweepRevoked.Add(float64(count))
}

// RecordReminderSent は送信済みリマインダー数を記録する。
func (c *Collector) RecordReminderSent(count int) {
	c.remindersSent.Add(float64(count))
}

// RecordBroadcast は一斉送信の成否を記録する。
func (c *Collector) RecordBroadcast(sent, failed int) {
	c.broadcastSent.Add(float64(sent))
	c.broadcastFailed.Add(float64(failed))
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
