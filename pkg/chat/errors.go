package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Submit while a previous turn is still open.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrRateLimited is returned by Submit when the rate limiter denies a turn.
	ErrRateLimited = errors.New("too many requests, try again later")
)

// TransportError is a turn that failed before any reply content arrived.
// The turn is not persisted.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
