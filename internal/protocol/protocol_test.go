package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWireNames(t *testing.T) {
	frame := []byte(`{"type":"offer","from":"B","to":"A","roomId":"ABCD","data":{"type":"offer","sdp":"v=0"}}`)

	msg, err := JSON.Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, TypeOffer, msg.Type)
	assert.Equal(t, "B", msg.From)
	assert.Equal(t, "A", msg.To)
	assert.Equal(t, "ABCD", msg.RoomID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(msg.Data))
}

func TestJSONKeepsFalseIsHost(t *testing.T) {
	out, err := JSON.Encode(UserJoined("ABCD", "B", false))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, false, fields["isHost"])
	assert.Equal(t, "user-joined", fields["type"])
	assert.NotContains(t, fields, "count")
}

func TestJSONDecodeGarbage(t *testing.T) {
	_, err := JSON.Decode([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestMsgpackCarriesOpaqueData(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	in := &Message{
		Type:      TypeICECandidate,
		From:      "B",
		To:        "A",
		IsHost:    Bool(false),
		Timestamp: &now,
		Data:      json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}`),
	}

	frame, err := Msgpack.Encode(in)
	require.NoError(t, err)

	out, err := Msgpack.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.To, out.To)
	assert.False(t, out.Host())
	assert.JSONEq(t, string(in.Data), string(out.Data))
	require.NotNil(t, out.Timestamp)
	assert.True(t, now.Equal(*out.Timestamp))
}

func TestMsgpackRejectsNonJSONData(t *testing.T) {
	frame, err := Msgpack.Encode(&Message{Type: TypeOffer, From: "B", To: "A", Data: json.RawMessage("v=0 raw sdp")})
	require.NoError(t, err)

	_, err = Msgpack.Decode(frame)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecFor(t *testing.T) {
	assert.Equal(t, Msgpack, CodecFor(SubprotocolMsgpack))
	assert.Equal(t, JSON, CodecFor(SubprotocolJSON))
	assert.Equal(t, JSON, CodecFor(""))
	assert.True(t, Msgpack.Binary())
	assert.False(t, JSON.Binary())
}

func TestRoutes(t *testing.T) {
	cases := map[Type]Route{
		TypeJoinRoom:         RouteJoin,
		TypeHostSharing:      RouteBroadcast,
		TypeHostStopped:      RouteBroadcast,
		TypeOffer:            RouteUnicast,
		TypeAnswer:           RouteUnicast,
		TypeICECandidate:     RouteUnicast,
		TypeParticipantCount: RouteReject,
		TypeWelcome:          RouteReject,
		Type("chat"):         RouteReject,
	}
	for typ, want := range cases {
		assert.Equal(t, want, typ.Route(), "type %s", typ)
	}
	assert.True(t, TypeDeliveryFailed.Known())
	assert.False(t, Type("chat").Known())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		ok   bool
	}{
		{"join", &Message{Type: TypeJoinRoom, From: "A", RoomID: "abcd"}, true},
		{"join without room", &Message{Type: TypeJoinRoom, From: "A", RoomID: "  "}, false},
		{"join without participant", &Message{Type: TypeJoinRoom, RoomID: "ABCD"}, false},
		{"offer without target", &Message{Type: TypeOffer, From: "B"}, false},
		{"answer", &Message{Type: TypeAnswer, To: "B"}, true},
		{"host sharing", &Message{Type: TypeHostSharing}, true},
		{"missing type", &Message{From: "A"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformed)
			}
		})
	}
}

func TestNormalizeRoomID(t *testing.T) {
	assert.Equal(t, "ABCD", NormalizeRoomID(" abcd "))
	assert.Equal(t, "", NormalizeRoomID("   "))
}
