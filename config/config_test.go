package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/negsched/core/model"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `solver:
  k: 3
  time_budget_ms: 2500
  turn_buffer_minutes: 0
  exclude_infeasible: true
policy:
  shift_buckets:
    - minutes: 60
      cost: 2
    - minutes: 30
      cost: 1
  swap:
    enabled: true
    cost: 5
  outsource:
    enabled: true
    cost: 40
    ceiling: 100
airports:
  path: "airports.csv"
mqtt:
  broker: "tcp://localhost:1883"
  ack_topic: "negsched/acks"
  qos: 1
metrics:
  listen_addr: ":9100"
  sinks:
    - type: "nop"
runlog:
  type: "jsonl"
  conf:
    path: "runs.jsonl"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"solver.k", cfg.Solver.K, 3},
		{"solver.budget", cfg.Solver.Budget(), 2500 * time.Millisecond},
		{"solver.turn_buffer", cfg.Solver.TurnBuffer(), 0},
		{"solver.exclude_infeasible", cfg.Solver.ExcludeInfeasible, true},
		{"policy.first_bucket", cfg.Policy.ShiftBuckets[0].Minutes, 30},
		{"policy.direction", cfg.Policy.ShiftDirection, model.ShiftBoth},
		{"policy.swap_cost", cfg.Policy.Swap.Cost, 5.0},
		{"policy.outsource_ceiling", cfg.Policy.Outsource.Ceiling, 100.0},
		{"airports.path", cfg.Airports.Path, "airports.csv"},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.topic", cfg.MQTT.Topic, "negsched/results"},
		{"mqtt.qos", cfg.MQTT.QoS, byte(1)},
		{"metrics.listen_addr", cfg.Metrics.ListenAddr, ":9100"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"runlog.type", cfg.RunLog.Type, "jsonl"},
		{"runlog.path", cfg.RunLog.Conf["path"], "runs.jsonl"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Format, "json"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{"logging": {}}`))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Solver.K != 5 {
		t.Errorf("expected default k 5 got %d", cfg.Solver.K)
	}
	if cfg.Solver.Budget() != 10*time.Second {
		t.Errorf("unexpected default budget %s", cfg.Solver.Budget())
	}
	if cfg.Solver.TurnBuffer() != 30 {
		t.Errorf("expected default turn buffer 30 got %d", cfg.Solver.TurnBuffer())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info got %s", cfg.Logging.Level)
	}
	if cfg.MQTT.Topic != "" {
		t.Errorf("mqtt defaults applied without broker")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NS_SOLVER__K", "7")
	t.Setenv("NS_LOGGING__LEVEL", "warn")
	cfg, err := Load(writeConfig(t, "config.yaml", "solver:\n  k: 2\n"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Solver.K != 7 {
		t.Errorf("expected env override k=7 got %d", cfg.Solver.K)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env override level warn got %s", cfg.Logging.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		name string
		data string
	}{
		"format":  {"config.toml", ""},
		"level":   {"config.yaml", "logging:\n  level: loud\n"},
		"k":       {"config.yaml", "solver:\n  k: -1\n"},
		"turn":    {"config.yaml", "solver:\n  turn_buffer_minutes: -5\n"},
		"policy":  {"config.yaml", "policy:\n  skip:\n    enabled: true\n    cost: -1\n"},
		"mqtt":    {"config.yaml", "mqtt:\n  broker: tcp://x:1883\n  qos: 3\n"},
		"missing": {"", ""},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if c.name != "" {
				path = writeConfig(t, c.name, c.data)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestAirportsConfigLoad(t *testing.T) {
	ap, err := AirportsConfig{}.Load()
	if err != nil || ap != nil {
		t.Fatalf("expected no airports, got %v %v", ap, err)
	}
	path := writeConfig(t, "airports.csv", "icao,lat,lon\nKTEB,40.85,-74.06\n")
	ap, err = AirportsConfig{Path: path}.Load()
	if err != nil {
		t.Fatalf("load airports: %v", err)
	}
	if _, ok := ap["KTEB"]; !ok {
		t.Fatalf("expected KTEB in %v", ap)
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.Solver.K != 5 || cfg.Logging.Level != "info" {
		t.Errorf("defaults not applied: %+v", cfg.Solver)
	}
	if cfg.Policy.ShiftDirection != model.ShiftBoth {
		t.Errorf("policy not normalised: %q", cfg.Policy.ShiftDirection)
	}
	if cfg.API.ListenAddr != "" {
		t.Errorf("api enabled by default")
	}
}

func TestLoadAPISection(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", "api:\n  listen_addr: \":8080\"\n  token: \"secret\"\n"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.API.ListenAddr != ":8080" || cfg.API.Token != "secret" {
		t.Errorf("unexpected api config %+v", cfg.API)
	}
}
