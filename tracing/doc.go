// Package tracing wraps OpenTelemetry so the execution queue can record a
// span per worker spawn and per job execution without importing the
// upstream packages directly. Spans are no-ops until Init or
// InitWithExporter installs a provider.
package tracing
