package signaling

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

type fakeTransport struct {
	closed atomic.Int32
}

func (f *fakeTransport) Close() error {
	f.closed.Add(1)
	return nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(logging.Discard(), Options{QueueSize: 32})
}

// connect registers a connection and discards its welcome.
func connect(t *testing.T, h *Hub, id string) *Connection {
	t.Helper()
	c := NewConnection(id, h.opts.QueueSize, &fakeTransport{})
	h.Register(c)
	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.TypeWelcome, msgs[0].Type)
	return c
}

func drain(c *Connection) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case m := <-c.Outbound():
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []*protocol.Message) []protocol.Type {
	out := make([]protocol.Type, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestRegisterSendsWelcome(t *testing.T) {
	h := newTestHub(t)
	c := NewConnection("c1", 4, &fakeTransport{})
	h.Register(c)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeWelcome, msgs[0].Type)
	assert.Equal(t, protocol.WelcomeText, msgs[0].Message)
	assert.NotNil(t, msgs[0].Timestamp)
	assert.Equal(t, 1, h.ConnectionCount())
}

func TestJoinNotificationOrder(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	require.NoError(t, h.Join(a, "abcd", "A", true))
	msgs := drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeParticipantCount, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, 1, msgs[0].Count)
	assert.Equal(t, "ABCD", msgs[0].RoomID)

	require.NoError(t, h.Join(b, "ABCD", "B", false))

	msgs = drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeUserJoined, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, "B", msgs[0].From)
	require.NotNil(t, msgs[0].IsHost)
	assert.False(t, *msgs[0].IsHost)
	assert.Equal(t, 2, msgs[1].Count)

	msgs = drain(b)
	require.Equal(t, []protocol.Type{protocol.TypeParticipantCount, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, 2, msgs[0].Count)
	assert.Equal(t, 2, msgs[1].Count)

	assert.Equal(t, StateJoined, b.State())
	assert.Equal(t, "ABCD", b.RoomID())
}

func TestSecondJoinIsRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")

	require.NoError(t, h.Join(a, "ROOM1", "A", true))
	drain(a)

	err := h.Join(a, "ROOM2", "A", true)
	require.ErrorIs(t, err, ErrAlreadyJoined)
	assert.Empty(t, drain(a))
	assert.Equal(t, 1, h.RoomCount())
	assert.Equal(t, "ROOM1", a.RoomID())
}

func TestJoinAfterCloseFails(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	a.Close()

	require.ErrorIs(t, h.Join(a, "ROOM", "A", false), ErrConnectionClosed)
	assert.Zero(t, h.RoomCount())
}

func TestLeaveNotifiesAndDeletesEmptyRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	require.NoError(t, h.Join(a, "ABCD", "A", true))
	require.NoError(t, h.Join(b, "ABCD", "B", false))
	drain(a)
	drain(b)

	h.Leave(b)
	msgs := drain(a)
	require.Equal(t, []protocol.Type{protocol.TypeUserLeft, protocol.TypeParticipantCount}, types(msgs))
	assert.Equal(t, "B", msgs[0].From)
	assert.Equal(t, 1, msgs[1].Count)
	assert.Empty(t, drain(b))

	// Repeating the leave changes nothing.
	h.Leave(b)
	assert.Empty(t, drain(a))

	h.Leave(a)
	assert.Empty(t, drain(a))
	assert.Zero(t, h.RoomCount())

	_, err := h.Lookup("ABCD", "A")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.Room("ABCD")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestUnregisterRunsOnce(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	require.NoError(t, h.Join(a, "R", "A", true))
	require.NoError(t, h.Join(b, "R", "B", false))
	drain(a)

	tr := b.transport.(*fakeTransport)
	h.Unregister(b)
	h.Unregister(b)

	assert.Equal(t, int32(1), tr.closed.Load())
	assert.Equal(t, []protocol.Type{protocol.TypeUserLeft, protocol.TypeParticipantCount}, types(drain(a)))
	assert.Equal(t, 1, h.ConnectionCount())
	assert.Equal(t, StateClosed, b.State())
}

func TestLookupFirstRegisteredWins(t *testing.T) {
	h := newTestHub(t)
	first := connect(t, h, "c1")
	second := connect(t, h, "c2")
	require.NoError(t, h.Join(first, "R", "dup", false))
	require.NoError(t, h.Join(second, "R", "dup", false))

	got, err := h.Lookup("r", "dup")
	require.NoError(t, err)
	assert.Same(t, first, got)

	first.Close()
	got, err = h.Lookup("R", "dup")
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = h.Lookup("R", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepReapsClosedMembers(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	require.NoError(t, h.Join(a, "R", "A", true))
	require.NoError(t, h.Join(b, "R", "B", false))
	drain(a)

	// Transport died without a close event reaching the hub.
	b.Close()
	assert.Equal(t, 1, h.Sweep())
	assert.Equal(t, []protocol.Type{protocol.TypeUserLeft, protocol.TypeParticipantCount}, types(drain(a)))

	a.Close()
	assert.Equal(t, 1, h.Sweep())
	assert.Zero(t, h.RoomCount())
	assert.Zero(t, h.ConnectionCount())
	assert.Zero(t, h.Sweep())
}

func TestEnqueueDisconnectsOnBackpressure(t *testing.T) {
	tr := &fakeTransport{}
	c := NewConnection("slow", 1, tr)

	require.NoError(t, c.enqueue(protocol.Error("one")))
	require.ErrorIs(t, c.enqueue(protocol.Error("two")), errBackpressure)
	assert.False(t, c.IsOpen())
	assert.Equal(t, int32(1), tr.closed.Load())
	assert.ErrorIs(t, c.enqueue(protocol.Error("three")), ErrConnectionClosed)
}

func TestSlowMemberDoesNotBlockOthers(t *testing.T) {
	h := NewHub(logging.Discard(), Options{QueueSize: 3})
	host := NewConnection("host", 64, &fakeTransport{})
	slow := NewConnection("slow", 3, &fakeTransport{})
	fast := NewConnection("fast", 64, &fakeTransport{})
	for _, c := range []*Connection{host, slow, fast} {
		h.Register(c)
	}

	require.NoError(t, h.Join(host, "R", "H", true))
	require.NoError(t, h.Join(slow, "R", "S", false))
	require.NoError(t, h.Join(fast, "R", "F", false))
	drain(host)
	drain(fast)

	for i := 0; i < 5; i++ {
		h.Broadcast("R", &protocol.Message{Type: protocol.TypeHostSharing, From: "H"}, host)
	}

	assert.False(t, slow.IsOpen())
	assert.Len(t, drain(fast), 5)

	h.Sweep()
	detail, err := h.Room("R")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.ParticipantCount)
}

func TestRoomSnapshots(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	c := connect(t, h, "c")
	require.NoError(t, h.Join(a, "zulu", "A", true))
	require.NoError(t, h.Join(b, "ZULU", "B", false))
	require.NoError(t, h.Join(c, "alpha", "C", true))

	assert.Equal(t, []RoomSummary{
		{RoomID: "ALPHA", ParticipantCount: 1},
		{RoomID: "ZULU", ParticipantCount: 2},
	}, h.Rooms())

	detail, err := h.Room("zulu")
	require.NoError(t, err)
	assert.Equal(t, "ZULU", detail.RoomID)
	assert.Equal(t, []Participant{
		{UserID: "A", IsHost: true, Connected: true},
		{UserID: "B", IsHost: false, Connected: true},
	}, detail.Participants)
}

func TestConcurrentJoinLeave(t *testing.T) {
	h := NewHub(logging.Discard(), Options{QueueSize: 1024})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewConnection(fmt.Sprintf("c%d", i), 1024, &fakeTransport{})
			h.Register(c)
			if err := h.Join(c, fmt.Sprintf("room-%d", i%3), fmt.Sprintf("p%d", i), i%3 == 0); err != nil {
				t.Error(err)
				return
			}
			h.Broadcast(c.RoomID(), &protocol.Message{Type: protocol.TypeHostSharing}, c)
			h.Unregister(c)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, h.RoomCount())
	assert.Zero(t, h.ConnectionCount())
	assert.Empty(t, h.Rooms())
}

func TestCloseAll(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	require.NoError(t, h.Join(a, "R", "A", true))

	h.CloseAll()
	assert.False(t, a.IsOpen())
	assert.False(t, b.IsOpen())
	assert.Zero(t, h.RoomCount())
	assert.Zero(t, h.ConnectionCount())
}
