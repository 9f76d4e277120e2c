package server

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sirosfoundation/linesearch/internal/domain"
)

// Metrics records connection and verdict statistics
type Metrics struct {
	connections prometheus.Counter
	verdicts    *prometheus.CounterVec
	duration    prometheus.Histogram
	active      prometheus.Gauge

	// per-verdict totals kept alongside the counters for the status endpoint
	totals [len(verdictNames)]atomic.Uint64
}

var verdictNames = [...]string{
	domain.VerdictExists:        domain.VerdictExists.String(),
	domain.VerdictNotFound:      domain.VerdictNotFound.String(),
	domain.VerdictAuthFailed:    domain.VerdictAuthFailed.String(),
	domain.VerdictTimeout:       domain.VerdictTimeout.String(),
	domain.VerdictInvalidInput:  domain.VerdictInvalidInput.String(),
	domain.VerdictInternalError: domain.VerdictInternalError.String(),
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linesearch_connections_total",
			Help: "Accepted query connections.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linesearch_verdicts_total",
			Help: "Verdicts sent to clients, by verdict and reason.",
		}, []string{"verdict", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linesearch_request_duration_seconds",
			Help:    "Time from accept to response.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linesearch_active_connections",
			Help: "Connections currently being handled.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.verdicts, m.duration, m.active)
	}
	return m
}

func (m *Metrics) connectionOpened() {
	m.connections.Inc()
	m.active.Inc()
}

func (m *Metrics) connectionClosed() {
	m.active.Dec()
}

func (m *Metrics) observe(v domain.Verdict, reason string, elapsed time.Duration) {
	m.verdicts.WithLabelValues(v.String(), reason).Inc()
	m.duration.Observe(elapsed.Seconds())
	if int(v) >= 0 && int(v) < len(m.totals) {
		m.totals[v].Add(1)
	}
}

// Totals returns the number of responses sent per verdict name
func (m *Metrics) Totals() map[string]uint64 {
	out := make(map[string]uint64, len(verdictNames))
	for i, name := range verdictNames {
		out[name] = m.totals[i].Load()
	}
	return out
}
