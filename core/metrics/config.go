package metrics

import "github.com/kilianp07/negsched/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// ListenAddr exposes /metrics over HTTP when set.
	ListenAddr string `json:"listen_addr"`
}
