package signaling

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var errBackpressure = errors.New("outbound queue full")

// State is the lifecycle stage of a connection: Open → Joined → Closed.
type State int32

const (
	StateOpen State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one transport link from a participant to the relay.
type Connection struct {
	id        string
	ws        *websocket.Conn
	transport io.Closer
	codec     protocol.Codec

	// send is the bounded outbound queue drained by WritePump.
	send chan *protocol.Message
	done chan struct{}

	state atomic.Int32

	mu            sync.Mutex
	roomID        string
	participantID string
	isHost        bool

	closeOnce   sync.Once
	releaseOnce sync.Once
	acceptedAt  time.Time
}

// NewConnection creates a connection whose transport is only ever closed by
// the relay. Messages queued for it are read from Outbound.
func NewConnection(id string, queueSize int, transport io.Closer) *Connection {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Connection{
		id:         id,
		transport:  transport,
		codec:      protocol.JSON,
		send:       make(chan *protocol.Message, queueSize),
		done:       make(chan struct{}),
		acceptedAt: time.Now().UTC(),
	}
}

func newSocketConnection(id string, ws *websocket.Conn, codec protocol.Codec, queueSize int) *Connection {
	c := NewConnection(id, queueSize, ws)
	c.ws = ws
	c.codec = codec
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) State() State { return State(c.state.Load()) }

// IsOpen reports whether the transport has not been closed.
func (c *Connection) IsOpen() bool { return c.State() != StateClosed }

func (c *Connection) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Connection) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *Connection) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHost
}

// Outbound exposes the queue of messages waiting to be written.
func (c *Connection) Outbound() <-chan *protocol.Message { return c.send }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close marks the connection closed and closes its transport. Safe to call
// more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		if c.transport != nil {
			err = c.transport.Close()
		}
	})
	return err
}

// bind records room membership. It happens at most once per connection.
func (c *Connection) bind(roomID, participantID string, isHost bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateClosed:
		return ErrConnectionClosed
	case StateJoined:
		return ErrAlreadyJoined
	}
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateJoined)) {
		return ErrConnectionClosed
	}

	c.roomID = roomID
	c.participantID = participantID
	c.isHost = isHost
	return nil
}

// unbind clears room membership and returns the room it belonged to.
func (c *Connection) unbind() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roomID == "" {
		return "", false
	}
	roomID := c.roomID
	c.roomID = ""
	c.state.CompareAndSwap(int32(StateJoined), int32(StateOpen))
	return roomID, true
}

// enqueue never blocks. A member whose queue is full is disconnected; its
// read pump then runs the normal leave path.
func (c *Connection) enqueue(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.Close()
		return errBackpressure
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Connection) ReadPump(h *Hub) {
	defer h.Unregister(c)

	c.ws.SetReadLimit(h.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Debug("connection read failed", slog.String("conn_id", c.id), logging.Err(err))
			}
			return
		}

		msg, err := c.codec.Decode(frame)
		if err != nil {
			h.Malformed(c, err)
			continue
		}

		h.Route(c, msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Connection) WritePump(log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case msg := <-c.send:
			frame, err := c.codec.Encode(msg)
			if err != nil {
				log.Error("encode outbound message", slog.String("conn_id", c.id), slog.String("type", string(msg.Type)), logging.Err(err))
				continue
			}

			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(frameType, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
