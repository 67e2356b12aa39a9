// Copyright 2025 Ukweli Project
//
// Prometheus Metrics
// Operational counters for append, rejection, and verification activity,
// exposed on a private registry so tests never collide on the global one.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	AppendsTotal     prometheus.Counter
	RejectionsTotal  *prometheus.CounterVec
	ChainHeight      prometheus.Gauge
	VerifyRunsTotal  prometheus.Counter
	VerifyBreaks     *prometheus.CounterVec
}

// New creates and registers the ledger collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		AppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ukweli_appends_total",
			Help: "Records successfully appended to the chain",
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukweli_append_rejections_total",
			Help: "Rejected append attempts by error kind",
		}, []string{"kind"}),
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ukweli_chain_height",
			Help: "Current chain length including genesis",
		}),
		VerifyRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ukweli_verify_runs_total",
			Help: "Completed verification runs",
		}),
		VerifyBreaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ukweli_verify_breaks_total",
			Help: "Breaks found by verification runs, by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.AppendsTotal, m.RejectionsTotal, m.ChainHeight,
		m.VerifyRunsTotal, m.VerifyBreaks)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
