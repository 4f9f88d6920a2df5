package metrics

import "errors"

// MultiSink fans out planner events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards the event to every sink. A failing sink does not stop
// the others; all errors are returned joined.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordLeverUsage forwards lever usage to the sinks supporting it.
func (m *MultiSink) RecordLeverUsage(usage []LeverUsage) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(LeverRecorder); ok {
			if err := r.RecordLeverUsage(usage); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
