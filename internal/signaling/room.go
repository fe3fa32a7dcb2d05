package signaling

import (
	"sync"
	"time"
)

// Room is the set of connections watching one session. Members keep their
// join order so duplicate participant ids resolve to the first registered.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	members []*Connection
	// closed is set when the last member leaves, just before the room is
	// removed from the directory.
	closed bool
}

func newRoom(id string, now time.Time) *Room {
	return &Room{ID: id, CreatedAt: now}
}

func (r *Room) indexOfLocked(c *Connection) int {
	for i, m := range r.members {
		if m == c {
			return i
		}
	}
	return -1
}

func (r *Room) removeLocked(i int) {
	copy(r.members[i:], r.members[i+1:])
	r.members[len(r.members)-1] = nil
	r.members = r.members[:len(r.members)-1]
}

// RoomSummary is the listing view of a room.
type RoomSummary struct {
	RoomID           string
	ParticipantCount int
}

// Participant describes one member in a room detail view.
type Participant struct {
	UserID    string
	IsHost    bool
	Connected bool
}

// RoomDetail is the diagnostic view of a single room.
type RoomDetail struct {
	RoomID           string
	ParticipantCount int
	Participants     []Participant
	CreatedAt        time.Time
}
