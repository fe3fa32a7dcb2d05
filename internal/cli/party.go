package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/watchparty/internal/client"
	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/protocol"
	"github.com/BioHazard786/watchparty/internal/session"
	"github.com/BioHazard786/watchparty/internal/ui"
	"github.com/BioHazard786/watchparty/internal/webrtc"
)

// party is one participant's run in a room.
type party struct {
	cfg      *config.Client
	identity client.Identity
	role     session.Role

	media   *webrtc.Media     // host only
	forward *webrtc.Forwarder // viewer only
	log     *slog.Logger
}

func (p *party) run(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolver := dns.NewResolver()
	codec := protocol.JSON
	if flagMsgpack {
		codec = protocol.Msgpack
	}

	link, err := client.NewLink(client.Options{
		URL:      p.cfg.ServerURL,
		Identity: p.identity,
		Backoff: client.Backoff{
			Base:        p.cfg.ReconnectBase,
			Cap:         p.cfg.ReconnectCap,
			MaxAttempts: p.cfg.MaxReconnectAttempts,
		},
		Codec:    codec,
		Resolver: resolver,
		Log:      p.log,
	})
	if err != nil {
		return &Error{Op: "create link", Err: err}
	}

	factory, err := webrtc.NewFactory(p.cfg, p.forward, p.log)
	if err != nil {
		return &Error{Op: "create peer factory", Err: err}
	}

	opts := session.Options{
		Role:               p.role,
		ParticipantID:      p.identity.ParticipantID,
		Signaler:           link,
		Peers:              factory,
		NegotiationTimeout: p.cfg.NegotiationTimeout,
		OfferDelay:         p.cfg.OfferDelay,
		ReannounceDelay:    p.cfg.ReannounceDelay,
		Log:                p.log,
	}
	if p.media != nil {
		opts.Media = p.media
	}
	machine := session.NewMachine(opts)

	actions := ui.Actions{Retry: func() { machine.Retry("") }}
	if p.role == session.RoleHost {
		sharing := true
		actions.ToggleShare = func() {
			sharing = !sharing
			if sharing {
				_ = machine.StartSharing()
			} else {
				_ = machine.StopSharing()
			}
		}
	}
	view := ui.NewStatusUI(ctx, ui.NewStatusModel(p.identity.RoomID, p.identity.ParticipantID, p.role, actions), nil, nil)

	go machine.Run(ctx)
	go bridge(ctx, link.Events(), machine, view.Link)
	go relaySnapshots(ctx, machine.Updates(), view.Snapshot)

	linkErr := make(chan error, 1)
	go func() { linkErr <- link.Run(ctx) }()

	mediaErr := make(chan error, 1)
	if p.media != nil {
		go func() { mediaErr <- p.media.Run(ctx) }()
		if err := machine.StartSharing(); err != nil {
			return err
		}
	}

	view.Start()

	var runErr error
	select {
	case <-view.Done():
	case <-ctx.Done():
	case err := <-linkErr:
		if errors.Is(err, client.ErrGaveUp) {
			runErr = err
		}
	case err := <-mediaErr:
		if err != nil {
			runErr = &Error{Op: "ingest media", Err: err}
		}
	}

	cancel()
	view.Quit()
	<-machine.Done()

	if runErr == nil {
		runErr = view.Err()
	}
	return runErr
}

func newParticipant(isHost bool, roomID string) client.Identity {
	id := flagName
	if id == "" {
		id = NewParticipantID()
	}
	return client.Identity{
		RoomID:        protocol.NormalizeRoomID(roomID),
		ParticipantID: id,
		IsHost:        isHost,
	}
}

func joinHint(roomID string) string {
	return fmt.Sprintf("watchparty join %s", roomID)
}

func partyLogger() *slog.Logger {
	return slog.Default().With(slog.String("component", "party"))
}
