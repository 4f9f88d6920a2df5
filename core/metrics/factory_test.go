package metrics_test

import (
	"strings"
	"testing"

	"github.com/kilianp07/negsched/core/factory"
	metrics "github.com/kilianp07/negsched/core/metrics"
	_ "github.com/kilianp07/negsched/infra/metrics"
)

func TestNewMetricsSink_Builtins(t *testing.T) {
	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	if err != nil {
		t.Fatalf("create nop: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
	if _, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNewMetricsSink_InfluxNeedsURL(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{
		Type: "influx",
		Conf: map[string]any{"org": "ops", "bucket": "plans"},
	}})
	if err == nil || !strings.Contains(err.Error(), "url") {
		t.Fatalf("expected url error, got %v", err)
	}
}

// No config means no metrics; several configs fan out through a MultiSink
// that still reports lever usage.
func TestNewMetricsSink_Multi(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create nop default: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	if err != nil {
		t.Fatalf("create multi: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	if len(m.Sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(m.Sinks))
	}
	usage := []metrics.LeverUsage{{RequestID: "r1", Rank: 1, Lever: "shift", Count: 2, Cost: 2}}
	if err := m.RecordLeverUsage(usage); err != nil {
		t.Fatalf("record levers: %v", err)
	}
}
