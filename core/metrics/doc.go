// Package metrics defines the sink interfaces used to observe planner runs.
// Sinks like PromSink and InfluxSink record solve outcomes and lever usage
// and can be combined with NewMultiSink. The factory helpers return a
// MultiSink automatically when multiple sinks are configured.
package metrics
