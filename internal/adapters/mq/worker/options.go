package worker

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// Option applies a configuration option to the DetectionLoop.
type Option func(*DetectionLoop)

// WithName sets the loop name for identification and logging.
func WithName(name string) Option {
	return func(l *DetectionLoop) {
		if name != "" {
			l.name = name
		}
	}
}

// WithLogger sets a custom logger for the loop.
func WithLogger(logger logger.Logger) Option {
	return func(l *DetectionLoop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithThreshold sets the confidence below which a match is accepted.
func WithThreshold(threshold float64) Option {
	return func(l *DetectionLoop) {
		if threshold > 0 {
			l.threshold = threshold
		}
	}
}

// WithFrames publishes annotated frames to f using a.
func WithFrames(f Frames, a Annotator) Option {
	return func(l *DetectionLoop) {
		l.frames = f
		l.annotator = a
	}
}

// WithBackoff sets the pause after a failed acquisition.
func WithBackoff(d time.Duration) Option {
	return func(l *DetectionLoop) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// WithClock overrides the time source for frames without a capture time.
func WithClock(now func() time.Time) Option {
	return func(l *DetectionLoop) {
		if now != nil {
			l.now = now
		}
	}
}
