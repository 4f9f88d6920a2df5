package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/negsched/core/metrics"
)

// PromSink records planner runs in Prometheus metrics.
type PromSink struct {
	solves   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cost     prometheus.Gauge
	gap      prometheus.Gauge
	levers   *prometheus.CounterVec
}

// NewPromSink registers planner metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_solves_total",
		Help: "Total number of planner runs by outcome",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_solve_duration_seconds",
		Help:    "Wall-clock time of a planner run, enumeration included",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	cost := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_best_cost",
		Help: "Cost of the best solution of the last run",
	})
	gap := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_optimality_gap",
		Help: "Best cost minus lower bound of the last run",
	})
	levers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_lever_uses_total",
		Help: "Number of legs relying on a lever in top-ranked solutions",
	}, []string{"lever"})

	var err error
	if solves, err = register(reg, solves); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if cost, err = register(reg, cost); err != nil {
		return nil, err
	}
	if gap, err = register(reg, gap); err != nil {
		return nil, err
	}
	if levers, err = register(reg, levers); err != nil {
		return nil, err
	}
	return &PromSink{solves: solves, duration: duration, cost: cost, gap: gap, levers: levers}, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSolve counts the run and updates the cost gauges when a solution
// was produced.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Status).Inc()
	s.duration.WithLabelValues(ev.Status).Observe(ev.Duration.Seconds())
	if ev.Solutions > 0 {
		s.cost.Set(ev.BestCost)
		s.gap.Set(ev.BestCost - ev.LowerBound)
	}
	return nil
}

// RecordLeverUsage counts lever uses of the top-ranked solution only.
func (s *PromSink) RecordLeverUsage(usage []coremetrics.LeverUsage) error {
	for _, u := range usage {
		if u.Rank != 1 {
			continue
		}
		s.levers.WithLabelValues(u.Lever).Add(float64(u.Count))
	}
	return nil
}
