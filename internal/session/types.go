package session

import (
	"context"
	"encoding/json"

	"github.com/BioHazard786/watchparty/internal/protocol"
)

// Role is the local participant's part in the room.
type Role int

const (
	RoleViewer Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "viewer"
}

// State is a peer session's connection state. It is observed from the peer
// transport, never computed.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether the session can still make progress.
func (s State) Live() bool {
	return s == StateNew || s == StateConnecting || s == StateConnected
}

// Signaler sends a message to the relay. It reports false when the message
// could not be queued.
type Signaler interface {
	Send(msg *protocol.Message) bool
}

// LocalMedia is the outgoing media a host attaches to every session.
type LocalMedia interface {
	ID() string
}

// RemoteStream is media received from the host.
type RemoteStream interface {
	ID() string
}

// PeerHandlers are invoked by a PeerConnection from its own goroutines.
type PeerHandlers struct {
	OnCandidate   func(candidate json.RawMessage)
	OnStateChange func(state State)
	OnTrack       func(stream RemoteStream)
}

// PeerConnection is the negotiated peer transport for one remote
// participant. Descriptions and candidates are opaque JSON blobs.
type PeerConnection interface {
	// CreateOffer produces the local offer and sets it as local description.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// Answer applies a remote offer, attaches media and returns the answer.
	Answer(ctx context.Context, offer json.RawMessage, media LocalMedia) (json.RawMessage, error)
	ApplyAnswer(answer json.RawMessage) error
	// AddCandidate must not block. Candidates arriving before the remote
	// description are held by the implementation.
	AddCandidate(candidate json.RawMessage) error
	Close() error
}

// PeerFactory creates a PeerConnection for a remote participant.
type PeerFactory interface {
	NewPeer(remoteID string, handlers PeerHandlers) (PeerConnection, error)
}

// SessionInfo describes one peer session.
type SessionInfo struct {
	RemoteID string
	State    State
	Err      error
}

// Snapshot is everything the UI shows about the local participant.
type Snapshot struct {
	Role         Role
	Connected    bool
	Participants int
	Sharing      bool
	HostID       string
	RemoteStream RemoteStream
	Sessions     []SessionInfo
	LastError    error
}

// Session returns the info for remoteID, if a session exists.
func (s Snapshot) Session(remoteID string) (SessionInfo, bool) {
	for _, info := range s.Sessions {
		if info.RemoteID == remoteID {
			return info, true
		}
	}
	return SessionInfo{}, false
}
