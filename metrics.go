package headlessblog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	syncs        *prometheus.CounterVec
	syncDuration prometheus.Histogram
	syncedNodes  prometheus.Gauge
	renders      *prometheus.CounterVec
	deploys      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlessblog_syncs_total",
				Help: "Content syncs by result",
			},
			[]string{"result"},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "headlessblog_sync_duration_seconds",
				Help:    "Duration of content syncs",
				Buckets: prometheus.DefBuckets,
			},
		),
		syncedNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "headlessblog_synced_nodes",
				Help: "Nodes stored by the last successful sync",
			},
		),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlessblog_page_renders_total",
				Help: "Rendered pages by page name",
			},
			[]string{"page"},
		),
		deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlessblog_deploys_total",
				Help: "Site publishes by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.syncs, m.syncDuration, m.syncedNodes, m.renders, m.deploys)
	return m
}

func (m *metrics) observeSync(result string, d time.Duration, nodes int) {
	m.syncs.WithLabelValues(result).Inc()
	m.syncDuration.Observe(d.Seconds())
	if result == "ok" {
		m.syncedNodes.Set(float64(nodes))
	}
}

func (m *metrics) rendered(page string) {
	m.renders.WithLabelValues(page).Inc()
}
