package protocol

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is the wire unit exchanged between participants and the relay.
//
// Data is opaque to the relay: it carries the session description or
// candidate blob that only the two negotiating peers understand.
type Message struct {
	Type      Type            `json:"type" msgpack:"type"`
	From      string          `json:"from,omitempty" msgpack:"from,omitempty"`
	To        string          `json:"to,omitempty" msgpack:"to,omitempty"`
	RoomID    string          `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	IsHost    *bool           `json:"isHost,omitempty" msgpack:"isHost,omitempty"`
	Count     int             `json:"count,omitempty" msgpack:"count,omitempty"`
	Message   string          `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Host reports the isHost flag, treating an absent flag as false.
func (m *Message) Host() bool {
	return m.IsHost != nil && *m.IsHost
}

// Bool returns a pointer to b, for the optional isHost field.
func Bool(b bool) *bool {
	return &b
}

// NormalizeRoomID trims and upper-cases a caller-chosen room identifier.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// WelcomeText is the greeting sent to every accepted connection.
const WelcomeText = "Connected to Watch Party WebSocket Server"

func Welcome(now time.Time) *Message {
	ts := now.UTC()
	return &Message{Type: TypeWelcome, Message: WelcomeText, Timestamp: &ts}
}

func UserJoined(roomID, participantID string, isHost bool) *Message {
	return &Message{Type: TypeUserJoined, From: participantID, RoomID: roomID, IsHost: Bool(isHost)}
}

func UserLeft(roomID, participantID string, isHost bool) *Message {
	return &Message{Type: TypeUserLeft, From: participantID, RoomID: roomID, IsHost: Bool(isHost)}
}

func ParticipantCount(roomID string, count int) *Message {
	return &Message{Type: TypeParticipantCount, RoomID: roomID, Count: count}
}

func Error(text string) *Message {
	return &Message{Type: TypeError, Message: text}
}

// DeliveryFailed tells a sender that the unicast message of kind t could
// not reach participant to.
func DeliveryFailed(roomID, to string, t Type) *Message {
	return &Message{Type: TypeDeliveryFailed, RoomID: roomID, To: to, Message: string(t)}
}
