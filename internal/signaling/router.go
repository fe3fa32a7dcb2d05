package signaling

import (
	"errors"
	"log/slog"

	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

// Route handles one decoded message from c. It never fails the connection:
// problems are answered with an error or delivery-failed message.
func (h *Hub) Route(c *Connection, msg *protocol.Message) {
	if err := protocol.Validate(msg); err != nil {
		h.Malformed(c, err)
		return
	}

	var err error
	switch msg.Type.Route() {
	case protocol.RouteJoin:
		err = h.routeJoin(c, msg)
	case protocol.RouteBroadcast:
		err = h.routeBroadcast(c, msg)
	case protocol.RouteUnicast:
		err = h.routeUnicast(c, msg)
	default:
		err = routeError("route", msg.Type, ErrUnsupportedType)
	}

	if err == nil {
		return
	}

	h.log.Debug("message not routed",
		slog.String("conn_id", c.id),
		slog.String("type", string(msg.Type)),
		logging.Err(err),
	)

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConnectionClosed), errors.Is(err, errBackpressure):
		// Already answered or nobody left to answer.
	case errors.Is(err, ErrUnsupportedType):
		h.deliver(c, protocol.Error("Unsupported message type: "+string(msg.Type)))
	default:
		h.deliver(c, protocol.Error(err.Error()))
	}
}

// Malformed answers an undecodable or incomplete message. The connection
// stays open.
func (h *Hub) Malformed(c *Connection, err error) {
	h.log.Debug("malformed message", slog.String("conn_id", c.id), logging.Err(err))
	h.deliver(c, protocol.Error("Failed to process message: "+err.Error()))
}

func (h *Hub) routeJoin(c *Connection, msg *protocol.Message) error {
	if err := h.Join(c, msg.RoomID, msg.From, msg.Host()); err != nil {
		return routeError("join", msg.Type, err)
	}
	return nil
}

// routeBroadcast relays host-sharing and host-stopped to the sender's room.
func (h *Hub) routeBroadcast(c *Connection, msg *protocol.Message) error {
	roomID := c.RoomID()
	if roomID == "" {
		return routeError("broadcast", msg.Type, ErrNotJoined)
	}

	out := stamp(c, roomID, msg)
	n := h.Broadcast(roomID, out, c)
	h.log.Debug("broadcast relayed",
		slog.String("room_id", roomID),
		slog.String("type", string(msg.Type)),
		slog.Int("recipients", n),
	)
	return nil
}

// routeUnicast relays offer, answer and ice-candidate to one participant.
func (h *Hub) routeUnicast(c *Connection, msg *protocol.Message) error {
	const op = "signaling.router.unicast"

	roomID := c.RoomID()
	if roomID == "" {
		return routeError("unicast", msg.Type, ErrNotJoined)
	}

	target, err := h.Lookup(roomID, msg.To)
	if err != nil {
		h.log.Info("unicast target not found",
			slog.String("op", op),
			slog.String("room_id", roomID),
			slog.String("from", c.ParticipantID()),
			slog.String("to", msg.To),
			slog.String("type", string(msg.Type)),
		)
		h.deliver(c, protocol.DeliveryFailed(roomID, msg.To, msg.Type))
		return routeError("unicast", msg.Type, err)
	}

	if err := h.deliver(target, stamp(c, roomID, msg)); err != nil {
		h.deliver(c, protocol.DeliveryFailed(roomID, msg.To, msg.Type))
		return routeError("unicast", msg.Type, err)
	}
	return nil
}

// stamp returns a copy of msg carrying the sender's identity as the relay
// knows it. Data is shared untouched.
func stamp(c *Connection, roomID string, msg *protocol.Message) *protocol.Message {
	out := *msg
	out.From = c.ParticipantID()
	out.RoomID = roomID
	return &out
}
