package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the producer and consumer instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	published       *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec

	received   *prometheus.CounterVec
	processed  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	dlq        *prometheus.CounterVec
	handleTime *prometheus.HistogramVec
}

// NewMetrics registers the kafka instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	consumerLabels := []string{"topic", "consumer_group"}

	return &Metrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_producer_messages_published_total",
			Help: "Messages published.",
		}, []string{"topic"}),
		publishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_producer_publish_errors_total",
			Help: "Publish failures.",
		}, []string{"topic"}),
		publishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Publish latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_messages_received_total",
			Help: "Messages fetched from the broker.",
		}, consumerLabels),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_messages_processed_total",
			Help: "Messages handled successfully.",
		}, consumerLabels),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_messages_failed_total",
			Help: "Messages that exhausted their retries.",
		}, consumerLabels),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_messages_duplicate_total",
			Help: "Messages skipped by the idempotency guard.",
		}, consumerLabels),
		dlq: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_dlq_published_total",
			Help: "Messages forwarded to a dead-letter topic.",
		}, consumerLabels),
		handleTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kafka_consumer_processing_duration_seconds",
			Help:    "Handler latency.",
			Buckets: prometheus.DefBuckets,
		}, consumerLabels),
	}
}

func (m *Metrics) observePublish(topic string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.publishDuration.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.publishErrors.WithLabelValues(topic).Inc()
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

func (m *Metrics) inc(vec func(*Metrics) *prometheus.CounterVec, topic, group string) {
	if m == nil {
		return
	}
	vec(m).WithLabelValues(topic, group).Inc()
}

func (m *Metrics) observeHandle(topic, group string, seconds float64) {
	if m == nil {
		return
	}
	m.handleTime.WithLabelValues(topic, group).Observe(seconds)
}

func receivedVec(m *Metrics) *prometheus.CounterVec  { return m.received }
func processedVec(m *Metrics) *prometheus.CounterVec { return m.processed }
func failedVec(m *Metrics) *prometheus.CounterVec    { return m.failed }
func duplicateVec(m *Metrics) *prometheus.CounterVec { return m.duplicates }
func dlqVec(m *Metrics) *prometheus.CounterVec       { return m.dlq }
