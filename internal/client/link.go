package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

// Status is the link state shown to the user.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Identity is what the link announces in join-room after every open.
type Identity struct {
	RoomID        string
	ParticipantID string
	IsHost        bool
}

// Event is either a status change or an inbound message. Both travel on
// one channel so a reconnect is always seen before the messages after it.
type Event struct {
	Status  Status
	Message *protocol.Message

	// Set on StatusReconnecting.
	Attempt int
	Delay   time.Duration
	// Set on StatusReconnecting and StatusDisconnected.
	Err error
}

type Options struct {
	URL      string
	Identity Identity
	Backoff  Backoff
	Codec    protocol.Codec
	Resolver *dns.Resolver
	Log      *slog.Logger
}

// Link keeps exactly one websocket to the relay open, reconnecting with
// bounded exponential backoff.
type Link struct {
	url      string
	identity Identity
	backoff  Backoff
	codec    protocol.Codec
	dialer   *websocket.Dialer
	log      *slog.Logger

	events chan Event

	mu  sync.Mutex
	out chan *protocol.Message
}

// NewLink creates a link. Nothing is dialled until Run.
func NewLink(opts Options) (*Link, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, &LinkError{Op: "new link", Err: fmt.Errorf("%w: bad url %q", ErrInvalidConfig, opts.URL)}
	}
	if opts.Identity.ParticipantID == "" || protocol.NormalizeRoomID(opts.Identity.RoomID) == "" {
		return nil, &LinkError{Op: "new link", Err: fmt.Errorf("%w: room and participant are required", ErrInvalidConfig)}
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Codec == nil {
		opts.Codec = protocol.JSON
	}
	if opts.Resolver == nil {
		opts.Resolver = dns.NewResolver()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	opts.Identity.RoomID = protocol.NormalizeRoomID(opts.Identity.RoomID)

	return &Link{
		url:      opts.URL,
		identity: opts.Identity,
		backoff:  opts.Backoff,
		codec:    opts.Codec,
		dialer: &websocket.Dialer{
			NetDialContext:   opts.Resolver.DialContext,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{opts.Codec.Subprotocol()},
		},
		log:    opts.Log,
		events: make(chan Event, queueSize),
	}, nil
}

// Events delivers status changes and inbound messages in order. It is
// closed when Run returns.
func (l *Link) Events() <-chan Event { return l.events }

func (l *Link) Identity() Identity { return l.identity }

// Send queues msg on the current connection, filling in the local
// participant and room. It reports false when there is no open connection
// or the queue is full.
func (l *Link) Send(msg *protocol.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return false
	}

	out := *msg
	if out.From == "" {
		out.From = l.identity.ParticipantID
	}
	if out.RoomID == "" {
		out.RoomID = l.identity.RoomID
	}

	select {
	case l.out <- &out:
		return true
	default:
		l.log.Warn("link queue full, dropping message", slog.String("type", string(msg.Type)))
		return false
	}
}

// Run dials the relay and keeps the link alive until ctx is done or the
// retry budget is spent, in which case it returns ErrGaveUp.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.events)

	l.emit(ctx, Event{Status: StatusConnecting})

	attempt := 0
	for {
		err := l.serve(ctx, &attempt)
		if ctx.Err() != nil {
			select {
			case l.events <- Event{Status: StatusDisconnected, Err: ctx.Err()}:
			default:
			}
			return ctx.Err()
		}

		if l.backoff.Exhausted(attempt) {
			gaveUp := &LinkError{Op: "reconnect", Err: fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempt, err)}
			l.log.Error("relay unreachable", slog.Int("attempts", attempt), logging.Err(err))
			l.emit(ctx, Event{Status: StatusDisconnected, Err: gaveUp})
			return gaveUp
		}

		delay := l.backoff.Delay(attempt)
		attempt++
		l.log.Info("reconnecting to relay",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logging.Err(err),
		)
		l.emit(ctx, Event{Status: StatusReconnecting, Attempt: attempt, Delay: delay, Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// serve runs one connection from dial to close.
func (l *Link) serve(ctx context.Context, attempt *int) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return &LinkError{Op: "dial", Err: err}
	}
	defer conn.Close()

	*attempt = 0
	codec := protocol.CodecFor(conn.Subprotocol())

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	out := make(chan *protocol.Message, queueSize)
	// join-room is always the first frame on a fresh connection.
	out <- &protocol.Message{
		Type:   protocol.TypeJoinRoom,
		From:   l.identity.ParticipantID,
		RoomID: l.identity.RoomID,
		IsHost: protocol.Bool(l.identity.IsHost),
	}

	l.mu.Lock()
	l.out = out
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.out = nil
		l.mu.Unlock()
	}()

	l.log.Info("connected to relay",
		slog.String("url", l.url),
		slog.String("room_id", l.identity.RoomID),
		slog.String("codec", codec.Subprotocol()),
	)
	l.emit(ctx, Event{Status: StatusConnected})

	done := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- l.writePump(conn, codec, out, done)
	}()

	readErr := l.readPump(ctx, conn, codec)
	close(done)
	if err := <-writeErr; err != nil && readErr == nil {
		readErr = err
	}
	return readErr
}

// readPump reads messages from the WebSocket connection.
func (l *Link) readPump(ctx context.Context, conn *websocket.Conn, codec protocol.Codec) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return &LinkError{Op: "read", Err: ErrServerClosed}
			}
			return &LinkError{Op: "read", Err: err}
		}

		msg, err := codec.Decode(frame)
		if err != nil {
			l.log.Warn("dropping undecodable frame", logging.Err(err))
			continue
		}

		if !l.emit(ctx, Event{Message: msg}) {
			return ctx.Err()
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (l *Link) writePump(conn *websocket.Conn, codec protocol.Codec, out <-chan *protocol.Message, done <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	kind := websocket.TextMessage
	if codec.Binary() {
		kind = websocket.BinaryMessage
	}

	for {
		select {
		case msg := <-out:
			frame, err := codec.Encode(msg)
			if err != nil {
				l.log.Error("encode message", slog.String("type", string(msg.Type)), logging.Err(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(kind, frame); err != nil {
				conn.Close()
				return &LinkError{Op: "write", Err: err}
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return &LinkError{Op: "ping", Err: err}
			}

		case <-done:
			return nil
		}
	}
}

func (l *Link) emit(ctx context.Context, ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
