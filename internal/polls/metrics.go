package polls

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "livepoll"

// Metrics counts engine outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	votesAccepted  prometheus.Counter
	votesRejected  *prometheus.CounterVec
	simulatedVotes prometheus.Counter
	pollOpen       prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		votesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_accepted_total",
			Help:      "Votes accepted from identified voters.",
		}),
		votesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_rejected_total",
			Help:      "Vote submissions rejected, by reason.",
		}, []string{"reason"}),
		simulatedVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "simulated_votes_total",
			Help:      "Votes recorded by the simulator.",
		}),
		pollOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "poll_open",
			Help:      "1 while the poll accepts votes, 0 once closed.",
		}),
	}
	for _, c := range []prometheus.Collector{m.votesAccepted, m.votesRejected, m.simulatedVotes, m.pollOpen} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) accepted() {
	if m != nil {
		m.votesAccepted.Inc()
	}
}

func (m *Metrics) rejected(err error) {
	if m != nil {
		m.votesRejected.WithLabelValues(ErrorCode(err)).Inc()
	}
}

func (m *Metrics) simulated() {
	if m != nil {
		m.simulatedVotes.Inc()
	}
}

func (m *Metrics) setOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.pollOpen.Set(1)
		return
	}
	m.pollOpen.Set(0)
}
