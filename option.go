package exq

import (
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/exq/metrics"
	"github.com/viant/exq/service/worker"
	"github.com/viant/exq/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig sets the configuration; DefaultConfig is used otherwise
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger shared by all components
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBackend sets the worker backend; local shell workers are used otherwise
func WithBackend(backend worker.Interface) Option {
	return func(s *Service) {
		s.backend = backend
	}
}

// WithFileSystem sets the file system backing the artifact cache
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithStatsListener registers a callback invoked on every stats change
func WithStatsListener(listener func(metrics.Snapshot)) Option {
	return func(s *Service) {
		s.statsListener = listener
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times, the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
