package solver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	solveDuration *prometheus.HistogramVec
	solvesTotal   *prometheus.CounterVec
	nodesExplored prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kernel_solve_duration_seconds",
			Help:    "Wall-clock time of one kernel search",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_solves_total",
			Help: "Number of kernel searches by outcome",
		},
		[]string{"status"},
	)
	nodes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_nodes_explored_total",
			Help: "Number of search nodes expanded by the kernel",
		},
	)
	return dur, total, nodes
}

func init() {
	solveDuration, solvesTotal, nodesExplored = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers kernel metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveDuration, solvesTotal, nodesExplored)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveDuration, solvesTotal, nodesExplored = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
