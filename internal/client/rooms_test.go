package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

func TestDirectory(t *testing.T) {
	hub, srv := startRelay(t)
	dir := NewDirectory(srv.URL, dns.NewResolver())
	ctx := context.Background()

	status, err := dir.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", status.Status)

	rooms, err := dir.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms.Rooms)

	l := newTestLink(t, wsURL(srv), Identity{RoomID: "movie", ParticipantID: "host-1", IsHost: true}, fastBackoff, protocol.JSON)
	runLink(t, l)
	expectStatus(t, l, StatusConnecting)
	expectStatus(t, l, StatusConnected)
	require.Eventually(t, func() bool { return hub.RoomCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	rooms, err = dir.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "MOVIE", rooms.Rooms[0].RoomID)

	room, err := dir.Room(ctx, "movie")
	require.NoError(t, err)
	assert.Equal(t, 1, room.ParticipantCount)
	require.Len(t, room.Participants, 1)
	assert.Equal(t, "host-1", room.Participants[0].UserID)
	assert.True(t, room.Participants[0].IsHost)

	_, err = dir.Room(ctx, "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
