package webrtc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/session"
)

// Factory builds pion peer connections sharing one media engine and ICE
// configuration. It implements session.PeerFactory.
type Factory struct {
	api     *pion.API
	conf    pion.Configuration
	forward *Forwarder
	log     *slog.Logger
}

// NewFactory prepares peer connections for cfg. Received tracks are handed
// to forward, which may be nil for a host.
func NewFactory(cfg *config.Client, forward *Forwarder, log *slog.Logger) (*Factory, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, NewError("register interceptors", err)
	}

	return &Factory{
		api:     pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(registry)),
		conf:    iceConfig(cfg, behindTunnel),
		forward: forward,
		log:     log,
	}, nil
}

func iceConfig(cfg *config.Client, tunnelled func() bool) pion.Configuration {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || tunnelled()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

func (f *Factory) NewPeer(remoteID string, h session.PeerHandlers) (session.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.conf)
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	p := &Peer{
		pc:       pc,
		handlers: h,
		forward:  f.forward,
		log:      f.log.With(slog.String("remote_id", remoteID)),
	}
	p.setupHandlers()
	return p, nil
}

// Peer adapts a pion PeerConnection to session.PeerConnection.
type Peer struct {
	pc       *pion.PeerConnection
	handlers session.PeerHandlers
	forward  *Forwarder
	log      *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || p.handlers.OnCandidate == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Warn("encode candidate", logging.Err(err))
			return
		}
		p.handlers.OnCandidate(data)
	})

	p.pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		p.log.Debug("peer connection state", slog.String("state", s.String()))
		if st, ok := mapState(s); ok && p.handlers.OnStateChange != nil {
			p.handlers.OnStateChange(st)
		}
	})

	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.log.Info("track received",
			slog.String("kind", track.Kind().String()),
			slog.String("codec", track.Codec().MimeType),
		)
		if p.handlers.OnTrack != nil {
			p.handlers.OnTrack(&RemoteTrack{track: track})
		}
		if p.forward != nil {
			go p.forward.Pipe(track, p.keyframeRequester(track))
			return
		}
		go discard(track)
	})
}

// mapState reports the session state for s. Disconnected is transient and
// may recover, so it is not reported.
func mapState(s pion.PeerConnectionState) (session.State, bool) {
	switch s {
	case pion.PeerConnectionStateNew:
		return session.StateNew, true
	case pion.PeerConnectionStateConnecting:
		return session.StateConnecting, true
	case pion.PeerConnectionStateConnected:
		return session.StateConnected, true
	case pion.PeerConnectionStateFailed:
		return session.StateFailed, true
	case pion.PeerConnectionStateClosed:
		return session.StateClosed, true
	default:
		return 0, false
	}
}

// CreateOffer asks for the host's video and audio without sending any.
func (p *Peer) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeVideo, pion.RTPCodecTypeAudio} {
		_, err := p.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return nil, WrapError("add transceiver", err, kind.String())
		}
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, NewError("set local description", err)
	}
	return p.localDescription(ctx)
}

func (p *Peer) Answer(ctx context.Context, offer json.RawMessage, media session.LocalMedia) (json.RawMessage, error) {
	desc, err := decodeDescription(offer, pion.SDPTypeOffer)
	if err != nil {
		return nil, err
	}
	if err := p.setRemote(desc); err != nil {
		return nil, err
	}

	if media != nil {
		local, ok := media.(*Media)
		if !ok {
			return nil, WrapError("attach media", ErrUnsupportedMedia, media.ID())
		}
		for _, t := range local.tracks {
			sender, err := p.pc.AddTrack(t.track)
			if err != nil {
				return nil, WrapError("add track", err, t.track.Kind().String())
			}
			go drainRTCP(sender)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, NewError("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, NewError("set local description", err)
	}
	return p.localDescription(ctx)
}

func (p *Peer) ApplyAnswer(answer json.RawMessage) error {
	desc, err := decodeDescription(answer, pion.SDPTypeAnswer)
	if err != nil {
		return err
	}
	return p.setRemote(desc)
}

// AddCandidate holds candidates until the remote description is set.
func (p *Peer) AddCandidate(candidate json.RawMessage) error {
	var c pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &c); err != nil {
		return NewError("parse ICE candidate", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return nil
	}
	if err := p.pc.AddICECandidate(c); err != nil {
		return NewError("add ICE candidate", err)
	}
	return nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteSet = true
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Warn("add held candidate", logging.Err(err))
		}
	}
	p.pending = nil
	return nil
}

func (p *Peer) localDescription(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return nil, NewError("encode description", err)
	}
	return data, nil
}

func decodeDescription(raw json.RawMessage, want pion.SDPType) (pion.SessionDescription, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, NewError("parse session description", err)
	}
	if desc.Type != want {
		return desc, WrapError("parse session description", ErrUnexpectedDescription, desc.Type.String())
	}
	return desc, nil
}

// RemoteTrack is a received track. It implements session.RemoteStream.
type RemoteTrack struct {
	track *pion.TrackRemote
}

func (r *RemoteTrack) ID() string { return r.track.StreamID() }

func (r *RemoteTrack) Kind() string { return r.track.Kind().String() }

func (r *RemoteTrack) Codec() string { return r.track.Codec().MimeType }

// drainRTCP reads sender reports so interceptors keep running.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func discard(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
