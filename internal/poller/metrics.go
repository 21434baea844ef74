package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bank_forwarder"

// Metrics are the poller's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	records       *prometheus.CounterVec
	streamErrors  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastSuccess   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Reconciled records by stream and outcome (addition, match, deletion).",
		}, []string{"stream", "outcome"}),
		streamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Skipped stream iterations by stream and error class.",
		}, []string{"stream", "class"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by target and result.",
		}, []string{"target", "result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last stream iteration that stored its snapshot.",
		}, []string{"stream"}),
	}
}

func (m *Metrics) observeDiff(stream string, additions, matches, deletions int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stream, "addition").Add(float64(additions))
	m.records.WithLabelValues(stream, "match").Add(float64(matches))
	m.records.WithLabelValues(stream, "deletion").Add(float64(deletions))
}

func (m *Metrics) streamError(stream, class string) {
	if m == nil {
		return
	}
	m.streamErrors.WithLabelValues(stream, class).Inc()
}

func (m *Metrics) notification(target string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(target, result).Inc()
}

func (m *Metrics) cycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) stored(stream string, at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(stream).Set(float64(at.Unix()))
}
