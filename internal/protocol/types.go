package protocol

import (
	"errors"
	"fmt"
)

// Type identifies the kind of a signaling message.
type Type string

// Message type constants.
const (
	TypeJoinRoom     Type = "join-room"
	TypeHostSharing  Type = "host-sharing"
	TypeHostStopped  Type = "host-stopped"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"

	TypeUserJoined       Type = "user-joined"
	TypeUserLeft         Type = "user-left"
	TypeParticipantCount Type = "participant-count"
	TypeWelcome          Type = "welcome"
	TypeError            Type = "error"
	TypeDeliveryFailed   Type = "delivery-failed"
)

// Route describes how the relay treats a message type sent by a client.
type Route int

const (
	// RouteReject covers unknown types and types only the relay may send.
	RouteReject Route = iota
	RouteJoin
	RouteBroadcast
	RouteUnicast
)

func (r Route) String() string {
	switch r {
	case RouteJoin:
		return "join"
	case RouteBroadcast:
		return "broadcast"
	case RouteUnicast:
		return "unicast"
	default:
		return "reject"
	}
}

// Route classifies t. Relay-originated types are rejected when a client
// sends them.
func (t Type) Route() Route {
	switch t {
	case TypeJoinRoom:
		return RouteJoin
	case TypeHostSharing, TypeHostStopped:
		return RouteBroadcast
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return RouteUnicast
	case TypeUserJoined, TypeUserLeft, TypeParticipantCount, TypeWelcome, TypeError, TypeDeliveryFailed:
		return RouteReject
	}
	return RouteReject
}

// Known reports whether t belongs to the closed set of message types.
func (t Type) Known() bool {
	switch t {
	case TypeJoinRoom, TypeHostSharing, TypeHostStopped, TypeOffer, TypeAnswer, TypeICECandidate,
		TypeUserJoined, TypeUserLeft, TypeParticipantCount, TypeWelcome, TypeError, TypeDeliveryFailed:
		return true
	}
	return false
}

// ErrMalformed marks a message that could not be decoded or lacks a field
// its type requires.
var ErrMalformed = errors.New("malformed message")

// Validate checks the fields a client-sent message of m.Type must carry.
func Validate(m *Message) error {
	if m == nil {
		return fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if m.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch m.Type.Route() {
	case RouteJoin:
		if m.From == "" {
			return fmt.Errorf("%w: %s requires from", ErrMalformed, m.Type)
		}
		if NormalizeRoomID(m.RoomID) == "" {
			return fmt.Errorf("%w: %s requires roomId", ErrMalformed, m.Type)
		}
	case RouteUnicast:
		if m.To == "" {
			return fmt.Errorf("%w: %s requires to", ErrMalformed, m.Type)
		}
	}
	return nil
}
