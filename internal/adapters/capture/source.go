// Package capture provides frame sources for the detection loop.
package capture

import (
	"context"
	"errors"

	"github.com/okian/rollcall/internal/domain/model"
)

// Sentinel errors.
var (
	// ErrAcquisition marks a transient failure to read a frame. Callers skip
	// the cycle and try again.
	ErrAcquisition = errors.New("capture: frame acquisition failed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: source closed")
)

// Source yields frames. Next may block up to one frame interval.
// A Source is owned by a single reader.
type Source interface {
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}
