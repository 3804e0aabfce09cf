// Package sinks contains audit.Sink implementations: structured logs,
// Prometheus counters, a Pub/Sub publisher, and a snapshot archive.
package sinks
