package webrtc

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/watchparty/internal/logging"
)

const keyframeInterval = 3 * time.Second

// Forwarder sends received RTP to local UDP ports so a player such as
// ffplay or VLC can render the host's stream.
type Forwarder struct {
	VideoAddr string
	AudioAddr string
	log       *slog.Logger
}

func NewForwarder(videoAddr, audioAddr string, log *slog.Logger) *Forwarder {
	return &Forwarder{VideoAddr: videoAddr, AudioAddr: audioAddr, log: log}
}

func (f *Forwarder) addr(kind string) string {
	switch kind {
	case "video":
		return f.VideoAddr
	case "audio":
		return f.AudioAddr
	default:
		return ""
	}
}

// Pipe forwards track until it ends. For video, keyframe is called
// periodically so a player joining late gets a decodable picture.
func (f *Forwarder) Pipe(track *pion.TrackRemote, keyframe func() error) {
	kind := track.Kind().String()
	log := f.log.With(slog.String("kind", kind))

	addr := f.addr(kind)
	if addr == "" {
		discard(track)
		return
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		log.Error("dial rtp output", slog.String("addr", addr), logging.Err(err))
		discard(track)
		return
	}
	defer conn.Close()

	if kind == "video" && keyframe != nil {
		done := make(chan struct{})
		defer close(done)
		go requestKeyframes(done, keyframe, log)
	}

	log.Info("forwarding rtp", slog.String("addr", addr))
	if err := forward(track, conn, log); err != nil {
		log.Debug("forwarding stopped", logging.Err(err))
	}
}

type packetSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// forward copies packets from src to w until src ends. Write errors are
// logged and skipped, since nothing may be listening on the output yet.
func forward(src packetSource, w io.Writer, log *slog.Logger) error {
	buf := make([]byte, maxPacketSize)
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return NewError("read track", err)
		}

		n, err := pkt.MarshalTo(buf)
		if err != nil {
			log.Debug("marshal rtp", logging.Err(err))
			continue
		}
		if _, err := w.Write(buf[:n]); err != nil {
			log.Debug("write rtp", logging.Err(err))
		}
	}
}

func requestKeyframes(done <-chan struct{}, keyframe func() error, log *slog.Logger) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := keyframe(); err != nil {
				log.Debug("keyframe request", logging.Err(err))
				return
			}
		}
	}
}

func (p *Peer) keyframeRequester(track *pion.TrackRemote) func() error {
	return func() error {
		return p.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
	}
}
