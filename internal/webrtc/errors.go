package webrtc

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedDescription = errors.New("unexpected session description type")
	ErrUnsupportedMedia      = errors.New("unsupported local media")
	ErrUnknownKind           = errors.New("unknown track kind")
	ErrNoSources             = errors.New("no media sources")
)

// Error wraps a failed peer or media operation.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
