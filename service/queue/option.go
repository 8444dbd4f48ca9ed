package queue

import (
	"github.com/rs/zerolog"
	"github.com/viant/exq/metrics"
	"github.com/viant/exq/service/messaging"
)

// Option customises the queue
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithStats sets the stats collector
func WithStats(stats *metrics.Stats) Option {
	return func(s *Service) {
		s.stats = stats
	}
}

// WithRemovals sets the queue used to ask the host to remove artifacts
func WithRemovals(removals messaging.Queue[RemoveArtifact]) Option {
	return func(s *Service) {
		s.removals = removals
	}
}
