package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/watchparty/internal/session"
	"github.com/BioHazard786/watchparty/internal/ui"
	"github.com/BioHazard786/watchparty/internal/webrtc"
)

var (
	flagVideoPort  int
	flagAudioPort  int
	flagVideoCodec string
	flagIngestHost string

	flagVideoOut string
	flagAudioOut string
)

var hostCmd = &cobra.Command{
	Use:   "host [room]",
	Short: "Host a room and share an RTP stream",
	Long: `Create or take over a room and share a stream with everyone who joins.

The stream is read as RTP from local UDP ports, for example:
  ffmpeg -f x11grab -i :0 -c:v libvpx -deadline realtime -b:v 2M \
    -f rtp rtp://127.0.0.1:5004

Examples:
  watchparty host
  watchparty host MOVIE --video-port 5004 --audio-port 5006`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := NewRoomID()
		if len(args) == 1 {
			roomID = args[0]
		}
		return hostRoom(cmd, roomID)
	},
}

func hostRoom(cmd *cobra.Command, roomID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sources, err := hostSources()
	if err != nil {
		return err
	}

	identity := newParticipant(true, roomID)
	log := partyLogger()

	media, err := webrtc.NewMedia(identity.ParticipantID, sources, log)
	if err != nil {
		return &Error{Op: "prepare media", Err: err}
	}

	fmt.Println(ui.RoomInfoView(identity.RoomID, joinHint(identity.RoomID)))

	p := &party{
		cfg:      cfg,
		identity: identity,
		role:     session.RoleHost,
		media:    media,
		log:      log,
	}
	return p.run(cmd.Context())
}

func hostSources() ([]webrtc.Source, error) {
	if flagVideoPort <= 0 {
		return nil, &Error{Op: "prepare media", Err: ErrNoVideoSource}
	}

	sources := []webrtc.Source{{
		Kind:     "video",
		MimeType: videoMime(flagVideoCodec),
		Addr:     net.JoinHostPort(flagIngestHost, strconv.Itoa(flagVideoPort)),
	}}
	if flagAudioPort > 0 {
		sources = append(sources, webrtc.Source{
			Kind: "audio",
			Addr: net.JoinHostPort(flagIngestHost, strconv.Itoa(flagAudioPort)),
		})
	}
	return sources, nil
}

func videoMime(codec string) string {
	switch codec {
	case "h264":
		return "video/H264"
	case "vp9":
		return "video/VP9"
	default:
		return "video/VP8"
	}
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and watch the host's stream",
	Long: `Join a room and forward the host's stream as RTP to local UDP ports,
where a player can pick it up, for example with an SDP file in ffplay or VLC.

Examples:
  watchparty join K3F9QZ
  watchparty join K3F9QZ --video-out 127.0.0.1:6004`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := partyLogger()
		p := &party{
			cfg:      cfg,
			identity: newParticipant(false, args[0]),
			role:     session.RoleViewer,
			forward:  webrtc.NewForwarder(flagVideoOut, flagAudioOut, log),
			log:      log,
		}
		return p.run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(hostCmd, joinCmd)

	hostCmd.Flags().IntVar(&flagVideoPort, "video-port", 5004, "UDP port receiving the video RTP stream")
	hostCmd.Flags().IntVar(&flagAudioPort, "audio-port", 0, "UDP port receiving the Opus RTP stream (0 disables audio)")
	hostCmd.Flags().StringVar(&flagVideoCodec, "codec", "vp8", "Video codec of the ingested stream: vp8, vp9 or h264")
	hostCmd.Flags().StringVar(&flagIngestHost, "ingest-host", "127.0.0.1", "Address the RTP ports listen on")

	joinCmd.Flags().StringVar(&flagVideoOut, "video-out", "127.0.0.1:6004", "UDP address to forward video RTP to")
	joinCmd.Flags().StringVar(&flagAudioOut, "audio-out", "", "UDP address to forward audio RTP to")
}
