package signaling

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

// Options tune the relay.
type Options struct {
	// SweepInterval is how often Run reconciles rooms against dead transports.
	SweepInterval time.Duration
	// QueueSize bounds each connection's outbound queue.
	QueueSize int
	// MaxMessageSize is the largest inbound frame accepted.
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		SweepInterval:  30 * time.Second,
		QueueSize:      256,
		MaxMessageSize: 64 * 1024,
	}
}

// Hub is the central brain of the signaling server.
// It owns the connection registry and the room directory.
//
// Lock order is room.mu then h.mu. Nothing holds h.mu while taking a room lock.
type Hub struct {
	log  *slog.Logger
	opts Options
	now  func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]*Connection
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger, opts Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultOptions()
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}

	return &Hub{
		log:   log,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		rooms: make(map[string]*Room),
		conns: make(map[string]*Connection),
	}
}

// Accept wraps an upgraded websocket, registers it and starts its pumps.
func (h *Hub) Accept(ws *websocket.Conn, codec protocol.Codec) *Connection {
	c := newSocketConnection(uuid.NewString(), ws, codec, h.opts.QueueSize)
	h.Register(c)

	go c.WritePump(h.log)
	go c.ReadPump(h)

	return c
}

// Register adds c to the registry and greets it.
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()

	h.log.Debug("connection registered",
		slog.String("conn_id", c.id),
		slog.String("codec", c.codec.Subprotocol()),
		slog.Int("connections", total),
	)

	if err := c.enqueue(protocol.Welcome(h.now())); err != nil {
		h.log.Warn("welcome not delivered", slog.String("conn_id", c.id), logging.Err(err))
	}
}

// Unregister is the single cleanup path for a connection, however it ended.
// It runs at most once per connection.
func (h *Hub) Unregister(c *Connection) {
	c.releaseOnce.Do(func() {
		c.Close()
		h.Leave(c)

		h.mu.Lock()
		delete(h.conns, c.id)
		h.mu.Unlock()

		h.log.Debug("connection unregistered",
			slog.String("conn_id", c.id),
			slog.Duration("lifetime", time.Since(c.acceptedAt)),
		)
	})
}

// Join puts c into roomID as participantID. The room is created if it does
// not exist yet. The other members learn about the newcomer first, then the
// newcomer receives the count, then everyone receives the count.
func (h *Hub) Join(c *Connection, roomID, participantID string, isHost bool) error {
	const op = "signaling.hub.join"

	roomID = protocol.NormalizeRoomID(roomID)
	log := h.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("participant_id", participantID),
	)

	if err := c.bind(roomID, participantID, isHost); err != nil {
		log.Info("join rejected", logging.Err(err))
		return err
	}

	for {
		room, created := h.getOrCreate(roomID)

		room.mu.Lock()
		if room.closed {
			// Emptied and removed between lookup and lock.
			room.mu.Unlock()
			continue
		}

		if !c.IsOpen() || c.RoomID() != roomID {
			if len(room.members) == 0 {
				h.deleteLocked(room)
			}
			room.mu.Unlock()
			return ErrConnectionClosed
		}

		room.members = append(room.members, c)
		count := len(room.members)

		h.sendLocked(room, protocol.UserJoined(roomID, participantID, isHost), c)
		h.deliver(c, protocol.ParticipantCount(roomID, count))
		h.sendLocked(room, protocol.ParticipantCount(roomID, count), nil)
		room.mu.Unlock()

		if created {
			log.Info("room created")
		}
		log.Info("participant joined", slog.Bool("is_host", isHost), slog.Int("participants", count))
		return nil
	}
}

// Leave removes c from its room. It is a no-op for a connection that is not
// in a room, so repeating it never repeats notifications.
func (h *Hub) Leave(c *Connection) {
	const op = "signaling.hub.leave"

	roomID, ok := c.unbind()
	if !ok {
		return
	}

	room := h.room(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	i := room.indexOfLocked(c)
	if i < 0 {
		return
	}
	room.removeLocked(i)

	log := h.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("participant_id", c.ParticipantID()),
	)

	if len(room.members) == 0 {
		h.deleteLocked(room)
		log.Info("room deleted")
		return
	}

	count := len(room.members)
	h.sendLocked(room, protocol.UserLeft(roomID, c.ParticipantID(), c.IsHost()), nil)
	h.sendLocked(room, protocol.ParticipantCount(roomID, count), nil)
	log.Info("participant left", slog.Int("participants", count))
}

// Lookup resolves a participant in a room. When several open connections
// share a participant id the earliest to join wins.
func (h *Hub) Lookup(roomID, participantID string) (*Connection, error) {
	room := h.room(protocol.NormalizeRoomID(roomID))
	if room == nil {
		return nil, ErrNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	for _, m := range room.members {
		if m.IsOpen() && m.ParticipantID() == participantID {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// Broadcast queues msg for every member of roomID except the given
// connection and returns how many members it was queued for.
func (h *Hub) Broadcast(roomID string, msg *protocol.Message, except *Connection) int {
	room := h.room(protocol.NormalizeRoomID(roomID))
	if room == nil {
		return 0
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return h.sendLocked(room, msg, except)
}

// Send queues msg for a single connection.
func (h *Hub) Send(c *Connection, msg *protocol.Message) error {
	return h.deliver(c, msg)
}

// Sweep unregisters members the relay has already closed but not yet
// removed, deleting rooms that become empty. Dead transports are found by
// the read pump's pong deadline, not here. It returns the number of
// connections reaped.
func (h *Hub) Sweep() int {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	var dead []*Connection
	for _, r := range rooms {
		r.mu.Lock()
		for _, m := range r.members {
			if !m.IsOpen() {
				dead = append(dead, m)
			}
		}
		r.mu.Unlock()
	}

	for _, c := range dead {
		h.Unregister(c)
	}

	if len(dead) > 0 {
		h.log.Info("sweep reaped connections", slog.Int("count", len(dead)))
	}
	return len(dead)
}

// Run sweeps on the configured interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.Unregister(c)
	}
}

// Rooms lists every room ordered by id.
func (h *Hub) Rooms() []RoomSummary {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, RoomSummary{RoomID: r.ID, ParticipantCount: len(r.members)})
		}
		r.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Room returns the member detail of one room.
func (h *Hub) Room(id string) (RoomDetail, error) {
	room := h.room(protocol.NormalizeRoomID(id))
	if room == nil {
		return RoomDetail{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return RoomDetail{}, ErrRoomNotFound
	}

	detail := RoomDetail{
		RoomID:           room.ID,
		ParticipantCount: len(room.members),
		Participants:     make([]Participant, 0, len(room.members)),
		CreatedAt:        room.CreatedAt,
	}
	for _, m := range room.members {
		detail.Participants = append(detail.Participants, Participant{
			UserID:    m.ParticipantID(),
			IsHost:    m.IsHost(),
			Connected: m.IsOpen(),
		})
	}
	return detail, nil
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) room(id string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[id]
}

func (h *Hub) getOrCreate(id string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[id]; ok {
		return r, false
	}
	r := newRoom(id, h.now())
	h.rooms[id] = r
	return r, true
}

// deleteLocked removes an empty room from the directory. Caller holds room.mu.
func (h *Hub) deleteLocked(room *Room) {
	room.closed = true

	h.mu.Lock()
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
	h.mu.Unlock()
}

// sendLocked fans msg out to the room. Caller holds room.mu.
func (h *Hub) sendLocked(room *Room, msg *protocol.Message, except *Connection) int {
	n := 0
	for _, m := range room.members {
		if m == except {
			continue
		}
		if h.deliver(m, msg) == nil {
			n++
		}
	}
	return n
}

func (h *Hub) deliver(c *Connection, msg *protocol.Message) error {
	err := c.enqueue(msg)
	switch err {
	case nil:
	case errBackpressure:
		h.log.Warn("outbound queue full, disconnecting",
			slog.String("conn_id", c.id),
			slog.String("participant_id", c.ParticipantID()),
			slog.String("type", string(msg.Type)),
		)
	default:
		h.log.Debug("message not delivered",
			slog.String("conn_id", c.id),
			slog.String("type", string(msg.Type)),
			logging.Err(err),
		)
	}
	return err
}
