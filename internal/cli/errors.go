package cli

import (
	"errors"
	"fmt"
)

var (
	ErrRelayWithoutTURN = errors.New("cannot force relay mode without a TURN server")
	ErrNoVideoSource    = errors.New("host needs a video source port")
)

// Error wraps a failed command step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
