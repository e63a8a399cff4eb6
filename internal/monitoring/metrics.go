package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"outbox/backend/internal/domain"
)

// Metrics 队列引擎与 HTTP 层的监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 队列指标
	MessagesEnqueued  prometheus.Counter
	MessagesDelivered prometheus.Counter
	DeliveryFailures  prometheus.Counter
	MessagesDead      prometheus.Counter
	MessagesCancelled prometheus.Counter
	MessagesRetried   prometheus.Counter
	MessagesRecovered prometheus.Counter
	QueueDepth        *prometheus.GaugeVec

	// 投递指标
	DeliveryDuration prometheus.Histogram
	ClaimedBatchSize prometheus.Histogram

	// 清理指标
	MessagesPurged prometheus.Counter
	BlobsDeleted   prometheus.Counter

	// 错误指标
	ConflictsTotal prometheus.Counter
	PanicsTotal    prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics 返回进程级的指标单例
//
// promauto 在默认 registry 上注册，重复注册会 panic，
// 因此全进程共享一个实例（测试里也一样）。
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outbox_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "endpoint", "status_code"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "outbox_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),
			MessagesEnqueued: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_enqueued_total",
					Help: "Messages accepted into the queue",
				},
			),
			MessagesDelivered: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_delivered_total",
					Help: "Messages delivered successfully",
				},
			),
			DeliveryFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_delivery_failures_total",
					Help: "Delivery attempts that failed",
				},
			),
			MessagesDead: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_dead_total",
					Help: "Messages moved to the dead state after exhausting retries",
				},
			),
			MessagesCancelled: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_cancelled_total",
					Help: "Messages cancelled while queued",
				},
			),
			MessagesRetried: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_retried_total",
					Help: "Dead or failed messages re-armed by an operator",
				},
			),
			MessagesRecovered: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_recovered_total",
					Help: "Messages recovered from an interrupted sending state",
				},
			),
			QueueDepth: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "outbox_queue_depth",
					Help: "Messages per status",
				},
				[]string{"status"},
			),
			DeliveryDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "outbox_delivery_duration_seconds",
					Help:    "SMTP delivery attempt duration",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
				},
			),
			ClaimedBatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "outbox_claimed_batch_size",
					Help:    "Messages claimed per poll cycle",
					Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
				},
			),
			MessagesPurged: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_messages_purged_total",
					Help: "Terminal messages removed by the retention sweep",
				},
			),
			BlobsDeleted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_blobs_deleted_total",
					Help: "Unreferenced attachment blobs garbage collected",
				},
			),
			ConflictsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_conflicts_total",
					Help: "Rejected state transitions and claim races",
				},
			),
			PanicsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outbox_panics_total",
					Help: "Recovered panics",
				},
			),
		}
	})
	return metricsInst
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// UpdateQueueDepth 刷新按状态的队列深度
func (m *Metrics) UpdateQueueDepth(counts map[domain.Status]int64) {
	for _, status := range []domain.Status{
		domain.StatusQueued, domain.StatusSending, domain.StatusSent,
		domain.StatusFailed, domain.StatusDead, domain.StatusCancelled,
	} {
		m.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
