// Package metric provides Prometheus metrics registration and the metrics
// HTTP endpoint for the file analysis pipeline.
//
// The MetricsRegistry owns a dedicated Prometheus registry preloaded with
// platform metrics (message traffic, errors, NATS connection state) and Go
// runtime collectors. Subsystems register their own metrics through the
// typed Register* methods, which reject duplicate names so two components
// can never silently share a collector.
package metric
