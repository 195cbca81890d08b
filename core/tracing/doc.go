// Package tracing wires OpenTelemetry for reconciliation runs. Gateway calls
// and patch applications open spans through the global tracer provider.
package tracing
