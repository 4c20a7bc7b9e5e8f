package repository

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

type options struct {
	log          logger.Logger
	maxOpenConns int
	pingTimeout  time.Duration
}

func defaultOptions() options {
	return options{
		log:          logger.Nop(),
		maxOpenConns: 4,
		pingTimeout:  10 * time.Second,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger used for store warnings.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxOpenConns caps the SQL connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithPingTimeout bounds the initial connectivity check of SQL stores.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}
