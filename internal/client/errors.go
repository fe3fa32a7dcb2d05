package client

import (
	"errors"
	"fmt"
)

var (
	ErrGaveUp        = errors.New("gave up reconnecting to the relay")
	ErrServerClosed  = errors.New("relay closed the connection")
	ErrInvalidConfig = errors.New("invalid link configuration")
	ErrRoomNotFound  = errors.New("room not found")
)

// LinkError wraps a failure of one link operation.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}
