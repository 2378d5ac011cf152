package scan

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the client's Prometheus instruments. Instantiated only when
// the caller opts in with WithMetrics, so the SDK never touches the default
// registry on its own.
type metrics struct {
	scansTotal   *prometheus.CounterVec
	unsafeTotal  *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustfence_scans_total",
			Help: "Total scan calls by outcome (safe, unsafe, skipped).",
		}, []string{"outcome"}),
		unsafeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustfence_unsafe_verdicts_total",
			Help: "Unsafe verdicts by normalized threat type.",
		}, []string{"threat_type"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trustfence_scan_failures_total",
			Help: "Scan infrastructure failures by resolution (open, closed).",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.scansTotal, m.unsafeTotal, m.failuresTotal)
	return m
}

func (m *metrics) recordVerdict(v *Verdict) {
	if m == nil {
		return
	}
	if v.Safe {
		m.scansTotal.WithLabelValues("safe").Inc()
		return
	}
	m.scansTotal.WithLabelValues("unsafe").Inc()
	m.unsafeTotal.WithLabelValues(string(v.ThreatType)).Inc()
}

func (m *metrics) recordSkipped() {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues("skipped").Inc()
}

func (m *metrics) recordFailure(mode FailMode) {
	if m == nil {
		return
	}
	if mode == FailClosed {
		m.failuresTotal.WithLabelValues("closed").Inc()
		return
	}
	m.failuresTotal.WithLabelValues("open").Inc()
}
