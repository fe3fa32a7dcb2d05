package webrtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/watchparty/internal/logging"
)

// maxPacketSize fits any RTP packet carried in a single UDP datagram on a
// typical path.
const maxPacketSize = 1500

// Source is one RTP stream the host ingests over UDP, e.g. from
// `ffmpeg ... -f rtp udp://127.0.0.1:5004`.
type Source struct {
	Kind string // "video" or "audio"
	// MimeType defaults to VP8 for video and Opus for audio.
	MimeType string
	Addr     string
}

func (s Source) capability() (pion.RTPCodecCapability, error) {
	switch s.Kind {
	case "video":
		mime := s.MimeType
		if mime == "" {
			mime = pion.MimeTypeVP8
		}
		return pion.RTPCodecCapability{MimeType: mime, ClockRate: 90000}, nil
	case "audio":
		mime := s.MimeType
		if mime == "" {
			mime = pion.MimeTypeOpus
		}
		return pion.RTPCodecCapability{MimeType: mime, ClockRate: 48000, Channels: 2}, nil
	default:
		return pion.RTPCodecCapability{}, WrapError("media source", ErrUnknownKind, s.Kind)
	}
}

type localTrack struct {
	src   Source
	track *pion.TrackLocalStaticRTP
}

// Media is the host's shared stream: one local track per Source, fed by
// RTP packets received on the source's UDP address. It implements
// session.LocalMedia and is attached to every answered session.
type Media struct {
	id     string
	tracks []*localTrack
	log    *slog.Logger
}

func NewMedia(streamID string, sources []Source, log *slog.Logger) (*Media, error) {
	if len(sources) == 0 {
		return nil, NewError("create media", ErrNoSources)
	}

	m := &Media{id: streamID, log: log}
	for _, src := range sources {
		c, err := src.capability()
		if err != nil {
			return nil, err
		}
		track, err := pion.NewTrackLocalStaticRTP(c, src.Kind, streamID)
		if err != nil {
			return nil, WrapError("create track", err, src.Kind)
		}
		m.tracks = append(m.tracks, &localTrack{src: src, track: track})
	}
	return m, nil
}

func (m *Media) ID() string { return m.id }

// Run listens on every source address and feeds the tracks until ctx is
// done or a listener fails.
func (m *Media) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, t := range m.tracks {
		conn, err := net.ListenPacket("udp", t.src.Addr)
		if err != nil {
			cancel()
			wg.Wait()
			return WrapError("listen rtp", err, t.src.Addr)
		}
		m.log.Info("ingesting rtp",
			slog.String("kind", t.src.Kind),
			slog.String("addr", conn.LocalAddr().String()),
		)

		wg.Add(1)
		go func(t *localTrack) {
			defer wg.Done()
			if err := ingest(ctx, conn, t.track, m.log); err != nil {
				once.Do(func() { firstErr = err })
				cancel()
			}
		}(t)
	}

	wg.Wait()
	return firstErr
}

type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// ingest copies RTP packets from conn to w until ctx is done. Datagrams
// that do not parse as RTP are skipped.
func ingest(ctx context.Context, conn net.PacketConn, w rtpWriter, log *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return NewError("read rtp", err)
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug("skipping non-rtp datagram", logging.Err(err))
			continue
		}
		// ErrClosedPipe only means no viewer is bound yet.
		if err := w.WriteRTP(&pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return NewError("write rtp", err)
		}
	}
}
