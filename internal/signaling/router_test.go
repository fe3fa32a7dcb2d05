package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/watchparty/internal/protocol"
)

func joinMsg(room, from string, host bool) *protocol.Message {
	return &protocol.Message{Type: protocol.TypeJoinRoom, RoomID: room, From: from, IsHost: protocol.Bool(host)}
}

func TestRouteWatchSessionScenario(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "conn-a")
	b := connect(t, h, "conn-b")

	h.Route(a, joinMsg("ABCD", "A", true))
	msgs := drain(a)
	require.NotEmpty(t, msgs)
	assert.Equal(t, protocol.TypeParticipantCount, msgs[0].Type)
	assert.Equal(t, 1, msgs[0].Count)

	h.Route(b, joinMsg("ABCD", "B", false))
	msgs = drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeUserJoined, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, "B", msgs[0].From)
	assert.False(t, msgs[0].Host())
	assert.Equal(t, 2, msgs[1].Count)
	msgs = drain(b)
	require.NotEmpty(t, msgs)
	assert.Equal(t, 2, msgs[len(msgs)-1].Count)

	h.Route(a, &protocol.Message{Type: protocol.TypeHostSharing, From: "A"})
	assert.Empty(t, drain(a))
	msgs = drain(b)
	require.Equal(t, []protocol.Type{protocol.TypeHostSharing}, types(msgs))
	assert.Equal(t, "A", msgs[0].From)
	assert.Equal(t, "ABCD", msgs[0].RoomID)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	h.Route(b, &protocol.Message{Type: protocol.TypeOffer, From: "B", To: "A", Data: offer})
	assert.Empty(t, drain(b))
	msgs = drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeOffer}, types(msgs))
	assert.Equal(t, "B", msgs[0].From)
	assert.JSONEq(t, string(offer), string(msgs[0].Data))

	h.Route(a, &protocol.Message{Type: protocol.TypeAnswer, From: "A", To: "B", Data: json.RawMessage(`{}`)})
	assert.Empty(t, drain(a))
	assert.Equal(t, []protocol.Type{protocol.TypeAnswer}, types(drain(b)))

	h.Unregister(b)
	msgs = drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeUserLeft, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, "B", msgs[0].From)
	assert.Equal(t, 1, msgs[1].Count)
	assert.Equal(t, []RoomSummary{{RoomID: "ABCD", ParticipantCount: 1}}, h.Rooms())

	h.Unregister(a)
	assert.Empty(t, h.Rooms())
}

func TestRouteUnicastReachesOnlyTarget(t *testing.T) {
	h := newTestHub(t)
	host := connect(t, h, "h")
	v1 := connect(t, h, "v1")
	v2 := connect(t, h, "v2")
	h.Route(host, joinMsg("R", "H", true))
	h.Route(v1, joinMsg("R", "V1", false))
	h.Route(v2, joinMsg("R", "V2", false))
	drain(host)
	drain(v1)
	drain(v2)

	h.Route(host, &protocol.Message{Type: protocol.TypeICECandidate, From: "H", To: "V2", Data: json.RawMessage(`{"candidate":"c"}`)})

	assert.Empty(t, drain(host))
	assert.Empty(t, drain(v1))
	assert.Equal(t, []protocol.Type{protocol.TypeICECandidate}, types(drain(v2)))
}

func TestRouteStampsSenderIdentity(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	h.Route(a, joinMsg("R", "A", true))
	h.Route(b, joinMsg("R", "B", false))
	drain(a)
	drain(b)

	sent := &protocol.Message{Type: protocol.TypeOffer, From: "spoofed", To: "A", RoomID: "OTHER"}
	h.Route(b, sent)

	msgs := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, "B", msgs[0].From)
	assert.Equal(t, "R", msgs[0].RoomID)
	assert.Equal(t, "spoofed", sent.From)
}

func TestRouteUnicastToAbsentTargetReportsDeliveryFailure(t *testing.T) {
	h := newTestHub(t)
	b := connect(t, h, "b")
	h.Route(b, joinMsg("R", "B", false))
	drain(b)

	h.Route(b, &protocol.Message{Type: protocol.TypeOffer, From: "B", To: "ghost"})

	msgs := drain(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeDeliveryFailed, msgs[0].Type)
	assert.Equal(t, "ghost", msgs[0].To)
	assert.Equal(t, string(protocol.TypeOffer), msgs[0].Message)
	assert.True(t, b.IsOpen())
}

func TestRouteRejections(t *testing.T) {
	tests := []struct {
		name   string
		joined bool
		msg    *protocol.Message
		prefix string
	}{
		{
			name:   "relay-only type",
			joined: true,
			msg:    &protocol.Message{Type: protocol.TypeWelcome},
			prefix: "Unsupported message type",
		},
		{
			name:   "unknown type",
			joined: true,
			msg:    &protocol.Message{Type: "chat"},
			prefix: "Unsupported message type",
		},
		{
			name:   "unicast without target",
			joined: true,
			msg:    &protocol.Message{Type: protocol.TypeAnswer, From: "A"},
			prefix: "Failed to process message",
		},
		{
			name:   "broadcast before join",
			msg:    &protocol.Message{Type: protocol.TypeHostSharing, From: "A"},
			prefix: "broadcast host-sharing",
		},
		{
			name:   "unicast before join",
			msg:    &protocol.Message{Type: protocol.TypeOffer, From: "A", To: "B"},
			prefix: "unicast offer",
		},
		{
			name:   "second join",
			joined: true,
			msg:    joinMsg("OTHER", "A", true),
			prefix: "join join-room",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			a := connect(t, h, "a")
			if tt.joined {
				h.Route(a, joinMsg("R", "A", true))
				drain(a)
			}

			h.Route(a, tt.msg)

			msgs := drain(a)
			require.Len(t, msgs, 1)
			assert.Equal(t, protocol.TypeError, msgs[0].Type)
			assert.Contains(t, msgs[0].Message, tt.prefix)
			assert.True(t, a.IsOpen())
		})
	}
}

func TestMalformedKeepsConnectionOpen(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")

	_, err := protocol.JSON.Decode([]byte("{not json"))
	require.Error(t, err)
	h.Malformed(a, err)

	msgs := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeError, msgs[0].Type)
	assert.Contains(t, msgs[0].Message, "Failed to process message")
	assert.True(t, a.IsOpen())
}
