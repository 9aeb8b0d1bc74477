package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by all components
type Metrics struct {
	ExchangesCompleted *prometheus.CounterVec
	ExchangesFailed    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	PollsTotal         *prometheus.CounterVec
	PollErrors         *prometheus.CounterVec
	ConsumerReady      *prometheus.GaugeVec
	SpoolFilesCreated  prometheus.Counter
	SpoolFilesDeleted  prometheus.Counter
	SpoolBytes         prometheus.Counter
	ActiveSpoolFiles   prometheus.Gauge
}

// NewMetrics creates the core metric collectors (unregistered)
func NewMetrics() *Metrics {
	return &Metrics{
		ExchangesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "exchanges",
			Name:      "completed_total",
			Help:      "Total exchanges completed successfully",
		}, []string{"consumer"}),

		ExchangesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "exchanges",
			Name:      "failed_total",
			Help:      "Total exchanges completed with an exception",
		}, []string{"consumer"}),

		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamkit",
			Subsystem: "exchanges",
			Name:      "processing_duration_seconds",
			Help:      "Time spent in the downstream processor per exchange",
			Buckets:   prometheus.DefBuckets,
		}, []string{"consumer"}),

		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "poll",
			Name:      "polls_total",
			Help:      "Total scheduled polls executed",
		}, []string{"consumer"}),

		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "poll",
			Name:      "errors_total",
			Help:      "Total polls that failed to fetch",
		}, []string{"consumer"}),

		ConsumerReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamkit",
			Subsystem: "poll",
			Name:      "ready",
			Help:      "Consumer readiness (1 after the first completed poll)",
		}, []string{"consumer"}),

		SpoolFilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "streamcache",
			Name:      "spool_files_created_total",
			Help:      "Total spool files created",
		}),

		SpoolFilesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "streamcache",
			Name:      "spool_files_deleted_total",
			Help:      "Total spool files deleted",
		}),

		SpoolBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamkit",
			Subsystem: "streamcache",
			Name:      "spool_bytes_total",
			Help:      "Total bytes written to spool files",
		}),

		ActiveSpoolFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamkit",
			Subsystem: "streamcache",
			Name:      "active_spool_files",
			Help:      "Spool files currently on disk",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ExchangesCompleted,
		m.ExchangesFailed,
		m.ProcessingDuration,
		m.PollsTotal,
		m.PollErrors,
		m.ConsumerReady,
		m.SpoolFilesCreated,
		m.SpoolFilesDeleted,
		m.SpoolBytes,
		m.ActiveSpoolFiles,
	}
}

// RecordExchange records the outcome of one exchange. All Record methods
// are no-ops on a nil *Metrics.
func (m *Metrics) RecordExchange(consumer string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	if failed {
		m.ExchangesFailed.WithLabelValues(consumer).Inc()
	} else {
		m.ExchangesCompleted.WithLabelValues(consumer).Inc()
	}
	m.ProcessingDuration.WithLabelValues(consumer).Observe(duration.Seconds())
}

// RecordPoll records one scheduled poll
func (m *Metrics) RecordPoll(consumer string, err error) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(consumer).Inc()
	if err != nil {
		m.PollErrors.WithLabelValues(consumer).Inc()
	}
}

// RecordReady updates consumer readiness
func (m *Metrics) RecordReady(consumer string, ready bool) {
	if m == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	m.ConsumerReady.WithLabelValues(consumer).Set(value)
}

// RecordSpoolCreated records a new spool file of the given size
func (m *Metrics) RecordSpoolCreated(bytes int64) {
	if m == nil {
		return
	}
	m.SpoolFilesCreated.Inc()
	m.SpoolBytes.Add(float64(bytes))
	m.ActiveSpoolFiles.Inc()
}

// RecordSpoolDeleted records a deleted spool file
func (m *Metrics) RecordSpoolDeleted() {
	if m == nil {
		return
	}
	m.SpoolFilesDeleted.Inc()
	m.ActiveSpoolFiles.Dec()
}
