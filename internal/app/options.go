package service

import (
	"time"

	"github.com/okian/rollcall/internal/adapters/capture"
	"github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration used by Start.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSource replaces the frame directory source. The caller keeps ownership.
func WithSource(src capture.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithRecognizer replaces the built-in detection and gallery pipeline.
func WithRecognizer(r worker.Recognizer) Option {
	return func(s *Service) {
		s.recognizer = r
	}
}

// WithStore replaces the store selected by the configuration.
// The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}
