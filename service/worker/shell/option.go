package shell

import (
	"time"

	"github.com/rs/zerolog"
)

// Option customises the shell backend
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPollInterval sets how often worker processes are checked for liveness
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = interval
	}
}
