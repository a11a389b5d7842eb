package coordinator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/replistore/internal/protocol"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec // op, result
	timeouts *prometheus.CounterVec // op
	purges   *prometheus.CounterVec // reason
	members  prometheus.Gauge
	files    *prometheus.GaugeVec // status
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replistore",
			Name:      "requests_total",
			Help:      "Client requests handled by the coordinator, by operation and result.",
		}, []string{"op", "result"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replistore",
			Name:      "operation_timeouts_total",
			Help:      "Store and remove operations abandoned before every replica acknowledged.",
		}, []string{"op"}),
		purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replistore",
			Name:      "records_purged_total",
			Help:      "File records dropped without completing, by reason.",
		}, []string{"reason"}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replistore",
			Name:      "storage_nodes",
			Help:      "Live storage nodes.",
		}),
		files: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replistore",
			Name:      "files",
			Help:      "File records by lifecycle status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.timeouts, m.purges, m.members, m.files)
	}
	return m
}

func (m *Metrics) request(op string, err error) {
	m.requests.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) timeout(op string) {
	m.timeouts.WithLabelValues(op).Inc()
	m.purges.WithLabelValues(op + "_timeout").Inc()
}

func (m *Metrics) purge(reason string) {
	m.purges.WithLabelValues(reason).Inc()
}

func (m *Metrics) observe(members int, files map[Status]int) {
	m.members.Set(float64(members))
	for status, n := range files {
		m.files.WithLabelValues(status.String()).Set(float64(n))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrNotEnoughNodes):
		return "not_enough_nodes"
	case errors.Is(err, protocol.ErrFileAlreadyExists):
		return "already_exists"
	case errors.Is(err, protocol.ErrFileDoesNotExist):
		return "does_not_exist"
	case errors.Is(err, protocol.ErrLoadUnavailable):
		return "load_unavailable"
	default:
		return "error"
	}
}
