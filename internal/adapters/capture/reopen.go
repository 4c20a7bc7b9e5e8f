package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

// Opener creates a fresh Source.
type Opener func(ctx context.Context) (Source, error)

// ReopenConfig bounds how a ReopeningSource recovers.
type ReopenConfig struct {
	// FailureThreshold is the number of consecutive failures before reopening.
	FailureThreshold int
	// RetryDelay is the initial delay between reopen attempts.
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration
}

// DefaultReopenConfig returns the default recovery settings.
func DefaultReopenConfig() ReopenConfig {
	return ReopenConfig{
		FailureThreshold: 5,
		RetryDelay:       200 * time.Millisecond,
		MaxRetryDelay:    5 * time.Second,
	}
}

// ReopeningSource wraps a Source and reopens it after repeated acquisition
// failures, the way a camera handle is reacquired when the device drops.
type ReopeningSource struct {
	open Opener
	cfg  ReopenConfig
	log  logger.Logger

	closing   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	src      Source
	failures int
	delay    time.Duration
	reopens  int
	closed   bool
}

// NewReopeningSource opens the first source immediately.
func NewReopeningSource(ctx context.Context, open Opener, cfg ReopenConfig, log logger.Logger) (*ReopeningSource, error) {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultReopenConfig().FailureThreshold
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultReopenConfig().RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay
	}
	if log == nil {
		log = logger.Nop()
	}
	src, err := open(ctx)
	if err != nil {
		return nil, err
	}
	return &ReopeningSource{
		open:    open,
		cfg:     cfg,
		log:     log,
		closing: make(chan struct{}),
		src:     src,
		delay:   cfg.RetryDelay,
	}, nil
}

// Next reads from the wrapped source, reopening it once failures pile up.
func (r *ReopeningSource) Next(ctx context.Context) (model.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.Frame{}, ErrClosed
	}
	if r.src == nil {
		if err := r.reopen(ctx); err != nil {
			return model.Frame{}, err
		}
	}

	f, err := r.src.Next(ctx)
	if err == nil {
		r.failures = 0
		r.delay = r.cfg.RetryDelay
		return f, nil
	}
	if !errors.Is(err, ErrAcquisition) {
		return f, err
	}

	r.failures++
	if r.failures >= r.cfg.FailureThreshold {
		r.log.Warn(ctx, "frame source failing, reopening",
			logger.Int("consecutive_failures", r.failures),
			logger.Error(err))
		_ = r.src.Close()
		r.src = nil
		r.failures = 0
	}
	return f, err
}

func (r *ReopeningSource) reopen(ctx context.Context) error {
	t := time.NewTimer(r.delay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-r.closing:
		t.Stop()
		return ErrClosed
	case <-t.C:
	}

	src, err := r.open(ctx)
	if err != nil {
		r.delay *= 2
		if r.delay > r.cfg.MaxRetryDelay {
			r.delay = r.cfg.MaxRetryDelay
		}
		r.log.Error(ctx, "reopen frame source failed", logger.Error(err), logger.Duration("next_delay", r.delay))
		return errors.Join(ErrAcquisition, err)
	}
	r.src = src
	r.reopens++
	r.log.Info(ctx, "frame source reopened", logger.Int("reopens", r.reopens))
	return nil
}

// Reopens reports how many times the source was reopened.
func (r *ReopeningSource) Reopens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reopens
}

// Close closes the wrapped source. A pending reopen backoff is interrupted.
func (r *ReopeningSource) Close() error {
	r.closeOnce.Do(func() { close(r.closing) })
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	return err
}
