package mailbox

import "errors"

// Sentinel kinds for mailbox errors.
var (
	ErrClosed          = errors.New("mailbox closed")
	ErrTooManyViewers  = errors.New("too many viewers")
	ErrDuplicateViewer = errors.New("viewer already subscribed")
)
