package signaling

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/watchparty/internal/protocol"
)

var (
	ErrAlreadyJoined    = errors.New("connection already joined a room")
	ErrNotJoined        = errors.New("connection has not joined a room")
	ErrNotFound         = errors.New("participant not found")
	ErrRoomNotFound     = errors.New("room not found")
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnsupportedType  = errors.New("unsupported message type")
)

// RouteError describes why the router refused or could not deliver a
// message.
type RouteError struct {
	Op   string
	Type protocol.Type
	Err  error
}

func (e *RouteError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Type, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

func routeError(op string, t protocol.Type, err error) *RouteError {
	return &RouteError{Op: op, Type: t, Err: err}
}
