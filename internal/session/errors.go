package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuchSession      = errors.New("no session for participant")
	ErrNegotiationFailed  = errors.New("negotiation failed")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrDeliveryFailed     = errors.New("relay could not deliver to participant")
	ErrNotHost            = errors.New("only the host can share")
	ErrNoHost             = errors.New("no host is sharing")
	ErrClosed             = errors.New("session machine closed")
)

// Error ties a failure to the operation and remote participant it hit.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}
