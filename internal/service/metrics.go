package service

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics holds the prometheus collectors for sync cycles.
// A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	cycles    *prometheus.CounterVec
	delivered prometheus.Counter
	failed    prometheus.Counter
	pending   prometheus.Gauge
}

// NewSyncMetrics creates and registers the sync collectors.
func NewSyncMetrics(reg prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsync_sync_cycles_total",
				Help: "Sync cycles by result (completed, skipped, failed).",
			},
			[]string{"result"},
		),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docsync_documents_delivered_total",
			Help: "Documents accepted by the remote endpoint.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docsync_documents_failed_total",
			Help: "Delivery attempts that left the document pending.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docsync_documents_pending",
			Help: "Pending documents seen at the start of the last cycle.",
		}),
	}

	for _, c := range []prometheus.Collector{m.cycles, m.delivered, m.failed, m.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SyncMetrics) cycle(result string) {
	if m != nil {
		m.cycles.WithLabelValues(result).Inc()
	}
}

func (m *SyncMetrics) deliveredOne() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *SyncMetrics) failedOne() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *SyncMetrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
