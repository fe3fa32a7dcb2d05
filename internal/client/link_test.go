package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
	"github.com/BioHazard786/watchparty/internal/server"
	"github.com/BioHazard786/watchparty/internal/signaling"
)

var fastBackoff = Backoff{Base: 10 * time.Millisecond, Cap: 40 * time.Millisecond, MaxAttempts: 5}

func startRelay(t *testing.T) (*signaling.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := signaling.NewHub(logging.Discard(), signaling.DefaultOptions())
	cfg := &config.Server{AllowedOrigins: []string{"*"}}
	srv := httptest.NewServer(server.NewRouter(hub, cfg, logging.Discard()))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newTestLink(t *testing.T, url string, id Identity, b Backoff, codec protocol.Codec) *Link {
	t.Helper()
	l, err := NewLink(Options{
		URL:      url,
		Identity: id,
		Backoff:  b,
		Codec:    codec,
		Resolver: dns.NewResolver(),
		Log:      logging.Discard(),
	})
	require.NoError(t, err)
	return l
}

func runLink(t *testing.T, l *Link) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func nextEvent(t *testing.T, l *Link) Event {
	t.Helper()
	select {
	case ev, ok := <-l.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for link event")
	}
	return Event{}
}

func expectStatus(t *testing.T, l *Link, want Status) Event {
	t.Helper()
	for {
		ev := nextEvent(t, l)
		if ev.Message == nil {
			require.Equal(t, want, ev.Status)
			return ev
		}
	}
}

func expectMessage(t *testing.T, l *Link, want protocol.Type) *protocol.Message {
	t.Helper()
	for {
		ev := nextEvent(t, l)
		if ev.Message != nil && ev.Message.Type == want {
			return ev.Message
		}
	}
}

func TestLinkJoinsOnEveryOpen(t *testing.T) {
	hub, srv := startRelay(t)
	l := newTestLink(t, wsURL(srv), Identity{RoomID: "abcd", ParticipantID: "A", IsHost: true}, fastBackoff, protocol.JSON)
	cancel, errCh := runLink(t, l)

	expectStatus(t, l, StatusConnecting)
	expectStatus(t, l, StatusConnected)
	assert.Equal(t, protocol.TypeWelcome, nextEvent(t, l).Message.Type)
	count := nextEvent(t, l).Message
	require.Equal(t, protocol.TypeParticipantCount, count.Type)
	assert.Equal(t, 1, count.Count)
	assert.Equal(t, "ABCD", count.RoomID)

	// The relay forgets the connection; the link must restore membership.
	hub.CloseAll()

	ev := expectStatus(t, l, StatusReconnecting)
	assert.Equal(t, 1, ev.Attempt)
	assert.Equal(t, 10*time.Millisecond, ev.Delay)
	expectStatus(t, l, StatusConnected)
	count = expectMessage(t, l, protocol.TypeParticipantCount)
	assert.Equal(t, 1, count.Count)

	detail, err := hub.Room("ABCD")
	require.NoError(t, err)
	require.Len(t, detail.Participants, 1)
	assert.Equal(t, "A", detail.Participants[0].UserID)
	assert.True(t, detail.Participants[0].IsHost)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestLinkSendFillsIdentity(t *testing.T) {
	_, srv := startRelay(t)

	host := newTestLink(t, wsURL(srv), Identity{RoomID: "R", ParticipantID: "H", IsHost: true}, fastBackoff, protocol.Msgpack)
	viewer := newTestLink(t, wsURL(srv), Identity{RoomID: "R", ParticipantID: "V"}, fastBackoff, protocol.JSON)

	assert.False(t, host.Send(&protocol.Message{Type: protocol.TypeHostSharing}))

	runLink(t, host)
	expectStatus(t, host, StatusConnecting)
	expectStatus(t, host, StatusConnected)
	expectMessage(t, host, protocol.TypeParticipantCount)

	runLink(t, viewer)
	expectStatus(t, viewer, StatusConnecting)
	expectStatus(t, viewer, StatusConnected)
	expectMessage(t, host, protocol.TypeUserJoined)
	expectMessage(t, viewer, protocol.TypeParticipantCount)

	require.True(t, host.Send(&protocol.Message{Type: protocol.TypeHostSharing}))
	got := expectMessage(t, viewer, protocol.TypeHostSharing)
	assert.Equal(t, "H", got.From)
	assert.Equal(t, "R", got.RoomID)
}

func TestLinkGivesUp(t *testing.T) {
	_, srv := startRelay(t)
	url := wsURL(srv)
	srv.Close()

	l := newTestLink(t, url, Identity{RoomID: "R", ParticipantID: "A"},
		Backoff{Base: time.Millisecond, Cap: 4 * time.Millisecond, MaxAttempts: 2}, protocol.JSON)

	err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrGaveUp)

	var statuses []Status
	for ev := range l.Events() {
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []Status{StatusConnecting, StatusReconnecting, StatusReconnecting, StatusDisconnected}, statuses)
}

func TestNewLinkValidates(t *testing.T) {
	_, err := NewLink(Options{URL: "http://x/ws", Identity: Identity{RoomID: "R", ParticipantID: "A"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewLink(Options{URL: "ws://x/ws", Identity: Identity{RoomID: " ", ParticipantID: "A"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	l, err := NewLink(Options{URL: "ws://x/ws", Identity: Identity{RoomID: "abc", ParticipantID: "A"}})
	require.NoError(t, err)
	assert.Equal(t, "ABC", l.Identity().RoomID)
	assert.Equal(t, DefaultBackoff(), l.backoff)
}
