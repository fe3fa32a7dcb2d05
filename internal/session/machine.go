package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
)

const eventQueueSize = 64

type Options struct {
	Role          Role
	ParticipantID string
	Signaler      Signaler
	Peers         PeerFactory
	// Media is attached to every session a host answers. May be nil.
	Media LocalMedia

	NegotiationTimeout time.Duration
	OfferDelay         time.Duration
	ReannounceDelay    time.Duration

	Log *slog.Logger
}

// Machine drives per-peer negotiation from relayed messages. All state is
// owned by the goroutine running Run; everything else posts events to it.
type Machine struct {
	opts Options
	log  *slog.Logger

	events  chan any
	updates chan Snapshot
	done    chan struct{}
	ctx     context.Context

	// Owned by the loop.
	connected    bool
	participants int
	sharing      bool
	hostID       string
	remote       RemoteStream
	sessions     map[string]*peerSession
	gen          uint64
	lastErr      error
}

type peerSession struct {
	remoteID string
	gen      uint64
	pc       PeerConnection
	state    State
	err      error
	timer    *time.Timer
	cancel   context.CancelFunc
	ctx      context.Context
}

// Events posted to the loop.
type (
	inboundEvent  struct{ msg *protocol.Message }
	linkEvent     struct{ up bool }
	sharingEvent  struct{ on bool }
	retryEvent    struct{ remoteID string }
	reannounceDue struct{}
	offerDue      struct {
		remoteID string
		gen      uint64
	}
	negotiated struct {
		remoteID string
		gen      uint64
		kind     protocol.Type
		sdp      json.RawMessage
		err      error
	}
	candidateFound struct {
		remoteID  string
		gen       uint64
		candidate json.RawMessage
	}
	peerStateChanged struct {
		remoteID string
		gen      uint64
		state    State
	}
	trackReceived struct {
		remoteID string
		gen      uint64
		stream   RemoteStream
	}
	negotiationTimeout struct {
		remoteID string
		gen      uint64
	}
	snapshotRequest struct{ reply chan Snapshot }
)

func NewMachine(opts Options) *Machine {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = 30 * time.Second
	}

	return &Machine{
		opts: opts,
		log: opts.Log.With(
			slog.String("participant_id", opts.ParticipantID),
			slog.String("role", opts.Role.String()),
		),
		events:   make(chan any, eventQueueSize),
		updates:  make(chan Snapshot, 1),
		done:     make(chan struct{}),
		sessions: make(map[string]*peerSession),
	}
}

// Run processes events until ctx is done. Every session is closed on exit.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	defer func() {
		for id := range m.sessions {
			m.closeSession(id)
		}
		close(m.done)
	}()

	m.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// Updates delivers the latest snapshot after every change. Older snapshots
// are replaced if the reader falls behind.
func (m *Machine) Updates() <-chan Snapshot { return m.updates }

// Done is closed when Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// HandleMessage feeds one relayed message to the machine.
func (m *Machine) HandleMessage(msg *protocol.Message) { m.post(inboundEvent{msg: msg}) }

// LinkUp reports a fresh connection to the relay, which has already been
// re-joined.
func (m *Machine) LinkUp() { m.post(linkEvent{up: true}) }

// LinkDown reports that the relay connection was lost.
func (m *Machine) LinkDown() { m.post(linkEvent{up: false}) }

// StartSharing announces the host's stream to the room.
func (m *Machine) StartSharing() error {
	if m.opts.Role != RoleHost {
		return newError("start sharing", "", ErrNotHost)
	}
	m.post(sharingEvent{on: true})
	return nil
}

// StopSharing tells viewers the stream ended and closes every session.
func (m *Machine) StopSharing() error {
	if m.opts.Role != RoleHost {
		return newError("stop sharing", "", ErrNotHost)
	}
	m.post(sharingEvent{on: false})
	return nil
}

// Retry restarts negotiation with remoteID from scratch. A viewer may pass
// an empty id to mean the current host.
func (m *Machine) Retry(remoteID string) { m.post(retryEvent{remoteID: remoteID}) }

// Snapshot returns the current state.
func (m *Machine) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !m.post(snapshotRequest{reply: reply}) {
		return Snapshot{}, ErrClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-m.done:
		return Snapshot{}, ErrClosed
	}
}

func (m *Machine) post(ev any) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) handle(ev any) {
	switch ev := ev.(type) {
	case inboundEvent:
		m.handleMessage(ev.msg)
	case linkEvent:
		m.handleLink(ev.up)
	case sharingEvent:
		m.handleSharing(ev.on)
	case retryEvent:
		m.handleRetry(ev.remoteID)
	case reannounceDue:
		if m.sharing && m.connected {
			m.send(&protocol.Message{Type: protocol.TypeHostSharing})
		}
	case offerDue:
		m.handleOfferDue(ev)
	case negotiated:
		m.handleNegotiated(ev)
	case candidateFound:
		if s := m.current(ev.remoteID, ev.gen); s != nil {
			m.send(&protocol.Message{Type: protocol.TypeICECandidate, To: ev.remoteID, Data: ev.candidate})
		}
	case peerStateChanged:
		m.handlePeerState(ev)
	case trackReceived:
		if s := m.current(ev.remoteID, ev.gen); s != nil {
			m.remote = ev.stream
			m.log.Info("remote stream received", slog.String("remote_id", ev.remoteID), slog.String("stream_id", ev.stream.ID()))
		}
	case negotiationTimeout:
		if s := m.current(ev.remoteID, ev.gen); s != nil && s.state != StateConnected {
			m.fail(s, newError("negotiate", s.remoteID, ErrNegotiationTimeout))
		}
	case snapshotRequest:
		ev.reply <- m.snapshot()
		return
	}
	m.publish()
}

func (m *Machine) handleMessage(msg *protocol.Message) {
	if msg == nil || (msg.From != "" && msg.From == m.opts.ParticipantID) {
		return
	}

	switch msg.Type {
	case protocol.TypeWelcome:
		m.log.Debug("relay welcome", slog.String("message", msg.Message))

	case protocol.TypeParticipantCount:
		m.participants = msg.Count

	case protocol.TypeUserJoined:
		if msg.Host() && m.opts.Role == RoleViewer {
			m.hostID = msg.From
		}
		if m.opts.Role == RoleHost && m.sharing {
			// Let the newcomer finish its own setup before it is told.
			time.AfterFunc(m.opts.ReannounceDelay, func() { m.post(reannounceDue{}) })
		}

	case protocol.TypeUserLeft:
		m.closeSession(msg.From)
		if msg.From == m.hostID {
			m.hostID = ""
			m.remote = nil
		}

	case protocol.TypeHostSharing:
		if m.opts.Role == RoleViewer {
			m.hostID = msg.From
			if s := m.sessions[msg.From]; s != nil && s.state.Live() {
				return
			}
			m.startViewing(msg.From)
		}

	case protocol.TypeHostStopped:
		if m.opts.Role == RoleViewer {
			m.closeSession(msg.From)
			m.remote = nil
		}

	case protocol.TypeOffer:
		if m.opts.Role == RoleHost && m.addressedToMe(msg) {
			m.answerOffer(msg.From, msg.Data)
		}

	case protocol.TypeAnswer:
		if m.opts.Role == RoleViewer && m.addressedToMe(msg) {
			m.applyAnswer(msg.From, msg.Data)
		}

	case protocol.TypeICECandidate:
		if !m.addressedToMe(msg) {
			return
		}
		s := m.sessions[msg.From]
		if s == nil || !s.state.Live() {
			m.log.Debug("dropping candidate without session", slog.String("remote_id", msg.From))
			return
		}
		if err := s.pc.AddCandidate(msg.Data); err != nil {
			m.log.Warn("add candidate", slog.String("remote_id", msg.From), logging.Err(err))
		}

	case protocol.TypeDeliveryFailed:
		if s := m.sessions[msg.To]; s != nil && s.state.Live() {
			m.fail(s, newError(msg.Message, msg.To, ErrDeliveryFailed))
		}

	case protocol.TypeError:
		m.lastErr = newError("relay", "", errors.New(msg.Message))
		m.log.Warn("relay error", slog.String("message", msg.Message))
	}
}

func (m *Machine) addressedToMe(msg *protocol.Message) bool {
	return msg.To == "" || msg.To == m.opts.ParticipantID
}

func (m *Machine) handleLink(up bool) {
	m.connected = up
	if !up {
		return
	}

	// The relay dropped us from the room while we were away, so the other
	// side has already torn its sessions down.
	for id := range m.sessions {
		m.closeSession(id)
	}
	m.remote = nil

	if m.opts.Role == RoleHost && m.sharing {
		m.send(&protocol.Message{Type: protocol.TypeHostSharing})
	}
}

func (m *Machine) handleSharing(on bool) {
	if m.sharing == on {
		return
	}
	m.sharing = on

	if on {
		m.send(&protocol.Message{Type: protocol.TypeHostSharing})
		return
	}

	m.send(&protocol.Message{Type: protocol.TypeHostStopped})
	for id := range m.sessions {
		m.closeSession(id)
	}
}

func (m *Machine) handleRetry(remoteID string) {
	if m.opts.Role == RoleViewer {
		if remoteID == "" {
			remoteID = m.hostID
		}
		if remoteID == "" {
			m.lastErr = newError("retry", "", ErrNoHost)
			return
		}
		m.closeSession(remoteID)
		m.startViewing(remoteID)
		return
	}

	// A host cannot offer; it drops the dead session and re-announces so
	// the viewer starts over.
	if remoteID != "" {
		m.closeSession(remoteID)
	}
	if m.sharing {
		m.send(&protocol.Message{Type: protocol.TypeHostSharing})
	}
}

// startViewing opens a session with the host and schedules the offer.
func (m *Machine) startViewing(hostID string) {
	s := m.openSession(hostID)
	if s == nil {
		return
	}
	s.state = StateConnecting

	gen := s.gen
	time.AfterFunc(m.opts.OfferDelay, func() { m.post(offerDue{remoteID: hostID, gen: gen}) })
}

func (m *Machine) handleOfferDue(ev offerDue) {
	s := m.current(ev.remoteID, ev.gen)
	if s == nil {
		return
	}

	pc, ctx, gen := s.pc, s.ctx, s.gen
	go func() {
		offer, err := pc.CreateOffer(ctx)
		m.post(negotiated{remoteID: ev.remoteID, gen: gen, kind: protocol.TypeOffer, sdp: offer, err: err})
	}()
}

func (m *Machine) answerOffer(remoteID string, offer json.RawMessage) {
	// A fresh offer means the viewer built a new peer connection, so any
	// session we still hold for it is useless.
	m.closeSession(remoteID)

	s := m.openSession(remoteID)
	if s == nil {
		return
	}
	s.state = StateConnecting

	pc, ctx, gen, media := s.pc, s.ctx, s.gen, m.opts.Media
	go func() {
		answer, err := pc.Answer(ctx, offer, media)
		m.post(negotiated{remoteID: remoteID, gen: gen, kind: protocol.TypeAnswer, sdp: answer, err: err})
	}()
}

func (m *Machine) applyAnswer(remoteID string, answer json.RawMessage) {
	s := m.sessions[remoteID]
	if s == nil || !s.state.Live() {
		err := newError("apply answer", remoteID, ErrNoSuchSession)
		m.lastErr = err
		m.log.Warn("answer without session", logging.Err(err))
		return
	}

	pc, gen := s.pc, s.gen
	go func() {
		err := pc.ApplyAnswer(answer)
		m.post(negotiated{remoteID: remoteID, gen: gen, kind: "", err: err})
	}()
}

// handleNegotiated completes an off-loop negotiation step. Completions for
// sessions that were closed or replaced meanwhile are ignored.
func (m *Machine) handleNegotiated(ev negotiated) {
	s := m.current(ev.remoteID, ev.gen)
	if s == nil {
		m.log.Debug("stale negotiation result", slog.String("remote_id", ev.remoteID), slog.Uint64("gen", ev.gen))
		return
	}

	if ev.err != nil {
		m.fail(s, newError("negotiate", s.remoteID, fmt.Errorf("%w: %v", ErrNegotiationFailed, ev.err)))
		return
	}

	switch ev.kind {
	case protocol.TypeOffer, protocol.TypeAnswer:
		m.send(&protocol.Message{Type: ev.kind, To: ev.remoteID, Data: ev.sdp})
	}
}

func (m *Machine) handlePeerState(ev peerStateChanged) {
	s := m.current(ev.remoteID, ev.gen)
	if s == nil {
		return
	}

	switch ev.state {
	case StateConnected:
		s.state = StateConnected
		s.timer.Stop()
		m.log.Info("peer connected", slog.String("remote_id", s.remoteID))
	case StateFailed:
		m.fail(s, newError("connect", s.remoteID, ErrNegotiationFailed))
	case StateClosed:
		m.closeSession(s.remoteID)
	case StateConnecting:
		if s.state == StateNew {
			s.state = StateConnecting
		}
	}
}

// openSession creates a peer connection for remoteID with a new generation
// and arms the negotiation timeout.
func (m *Machine) openSession(remoteID string) *peerSession {
	m.gen++
	gen := m.gen

	pc, err := m.opts.Peers.NewPeer(remoteID, PeerHandlers{
		OnCandidate: func(c json.RawMessage) {
			m.post(candidateFound{remoteID: remoteID, gen: gen, candidate: c})
		},
		OnStateChange: func(st State) {
			m.post(peerStateChanged{remoteID: remoteID, gen: gen, state: st})
		},
		OnTrack: func(stream RemoteStream) {
			m.post(trackReceived{remoteID: remoteID, gen: gen, stream: stream})
		},
	})
	if err != nil {
		e := newError("create peer", remoteID, err)
		m.lastErr = e
		m.log.Error("create peer connection", logging.Err(e))
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	s := &peerSession{
		remoteID: remoteID,
		gen:      gen,
		pc:       pc,
		state:    StateNew,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.timer = time.AfterFunc(m.opts.NegotiationTimeout, func() {
		m.post(negotiationTimeout{remoteID: remoteID, gen: gen})
	})
	m.sessions[remoteID] = s

	m.log.Debug("session opened", slog.String("remote_id", remoteID), slog.Uint64("gen", gen))
	return s
}

// fail marks s Failed and releases its transport. The session stays
// visible until it is retried or the peer leaves.
func (m *Machine) fail(s *peerSession, err error) {
	if !s.state.Live() {
		return
	}
	s.state = StateFailed
	s.err = err
	m.lastErr = err
	m.release(s)
	m.log.Warn("peer session failed", slog.String("remote_id", s.remoteID), logging.Err(err))
}

func (m *Machine) closeSession(remoteID string) {
	s, ok := m.sessions[remoteID]
	if !ok {
		return
	}
	delete(m.sessions, remoteID)
	if s.state.Live() {
		m.release(s)
	}
	s.state = StateClosed
	m.log.Debug("session closed", slog.String("remote_id", remoteID))
}

func (m *Machine) release(s *peerSession) {
	s.timer.Stop()
	s.cancel()
	pc := s.pc
	go func() {
		if err := pc.Close(); err != nil {
			m.log.Debug("close peer connection", slog.String("remote_id", s.remoteID), logging.Err(err))
		}
	}()
}

// current returns the live session for remoteID if it still has generation gen.
func (m *Machine) current(remoteID string, gen uint64) *peerSession {
	s := m.sessions[remoteID]
	if s == nil || s.gen != gen || !s.state.Live() {
		return nil
	}
	return s
}

func (m *Machine) send(msg *protocol.Message) {
	if !m.opts.Signaler.Send(msg) {
		m.log.Debug("signal not sent", slog.String("type", string(msg.Type)), slog.String("to", msg.To))
	}
}

func (m *Machine) snapshot() Snapshot {
	snap := Snapshot{
		Role:         m.opts.Role,
		Connected:    m.connected,
		Participants: m.participants,
		Sharing:      m.sharing,
		HostID:       m.hostID,
		RemoteStream: m.remote,
		LastError:    m.lastErr,
		Sessions:     make([]SessionInfo, 0, len(m.sessions)),
	}
	for _, s := range m.sessions {
		snap.Sessions = append(snap.Sessions, SessionInfo{RemoteID: s.remoteID, State: s.state, Err: s.err})
	}
	sort.Slice(snap.Sessions, func(i, j int) bool { return snap.Sessions[i].RemoteID < snap.Sessions[j].RemoteID })
	return snap
}

func (m *Machine) publish() {
	snap := m.snapshot()
	select {
	case <-m.updates:
	default:
	}
	m.updates <- snap
}
