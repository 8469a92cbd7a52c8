package manager

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/filestream/metric"
)

// managerMetrics holds Prometheus metrics for file manager operations.
// A nil receiver disables recording, so callers never guard call sites.
type managerMetrics struct {
	// Stream traffic
	deliveries     prometheus.Counter
	gaps           prometheus.Counter
	bytesDelivered prometheus.Counter

	// Analyzer lifecycle
	analyzersAttached *prometheus.CounterVec // By analyzer type and status (success/failure)

	// File lifecycle
	filesOpened prometheus.Counter
	filesClosed *prometheus.CounterVec // By reason (eof/abort/idle)
	openFiles   prometheus.Gauge
}

// newManagerMetrics creates and registers file manager metrics with the
// provided registry. A nil registry disables metrics.
func newManagerMetrics(registry *metric.MetricsRegistry) (*managerMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &managerMetrics{
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "deliveries_total",
			Help:      "Total number of chunk deliveries routed to file records",
		}),

		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "gaps_total",
			Help:      "Total number of gap notifications routed to file records",
		}),

		bytesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "bytes_delivered_total",
			Help:      "Total number of delivered bytes, duplicates included",
		}),

		analyzersAttached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "analyzers_attached_total",
			Help:      "Total number of analyzer attach attempts",
		}, []string{"type", "status"}), // status: success, failure

		filesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "files_opened_total",
			Help:      "Total number of file records created",
		}),

		filesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "files_closed_total",
			Help:      "Total number of file records closed",
		}, []string{"reason"}), // reason: eof, abort, idle

		openFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filestream",
			Subsystem: "manager",
			Name:      "open_files",
			Help:      "Current number of open file records",
		}),
	}

	// Register all metrics
	if err := registry.RegisterCounter("manager", "deliveries", m.deliveries); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("manager", "gaps", m.gaps); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("manager", "bytes_delivered", m.bytesDelivered); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("manager", "analyzers_attached", m.analyzersAttached); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("manager", "files_opened", m.filesOpened); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("manager", "files_closed", m.filesClosed); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("manager", "open_files", m.openFiles); err != nil {
		return nil, err
	}

	return m, nil
}

// recordDelivery records one chunk delivery of the given length.
func (m *managerMetrics) recordDelivery(length int) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	m.bytesDelivered.Add(float64(length))
}

// recordGap records one gap notification.
func (m *managerMetrics) recordGap() {
	if m == nil {
		return
	}
	m.gaps.Inc()
}

// recordAttach records an analyzer attach attempt.
func (m *managerMetrics) recordAttach(analyzerType string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.analyzersAttached.WithLabelValues(analyzerType, status).Inc()
}

// recordFileOpened records a new file record and bumps the open gauge.
func (m *managerMetrics) recordFileOpened() {
	if m == nil {
		return
	}
	m.filesOpened.Inc()
	m.openFiles.Inc()
}

// recordFileClosed records a closed file record with its reason.
func (m *managerMetrics) recordFileClosed(reason string) {
	if m == nil {
		return
	}
	m.filesClosed.WithLabelValues(reason).Inc()
	m.openFiles.Dec()
}
