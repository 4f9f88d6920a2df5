// Package infra holds the adapters around the planner: zerolog logging,
// Prometheus and InfluxDB sinks, the MQTT result publisher and the run log
// stores. They depend on core interfaces, never the other way round.
package infra
