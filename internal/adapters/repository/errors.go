package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrStoreWrite      = errors.New("attendance store write failed")
	ErrStoreUnreadable = errors.New("attendance store unreadable")
	ErrUnknownDriver   = errors.New("unknown attendance store driver")
	ErrClosed          = errors.New("attendance store closed")
)
