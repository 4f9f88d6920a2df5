package metrics

import "time"

// SolveEvent summarises one planner run.
type SolveEvent struct {
	RequestID string
	// Status is the status of the best solution, or the error class when
	// no solution was produced (infeasible, structural_infeasibility,
	// search_budget_exceeded, invalid_input).
	Status     string
	Legs       int
	Tails      int
	Excluded   int
	Solutions  int
	BestCost   float64
	LowerBound float64
	Nodes      int64
	Duration   time.Duration
	Time       time.Time
}

// MetricsSink records planner runs for observability purposes.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
}

// LeverUsage counts how often one lever was pulled in a ranked solution.
type LeverUsage struct {
	RequestID string
	Rank      int
	Lever     string
	Count     int
	Cost      float64
	Time      time.Time
}

// LeverRecorder is implemented by sinks able to record lever usage.
type LeverRecorder interface {
	RecordLeverUsage(usage []LeverUsage) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error        { return nil }
func (NopSink) RecordLeverUsage([]LeverUsage) error { return nil }
