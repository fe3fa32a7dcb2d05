package cli

import (
	"context"

	"github.com/BioHazard786/watchparty/internal/client"
	"github.com/BioHazard786/watchparty/internal/protocol"
	"github.com/BioHazard786/watchparty/internal/session"
	"github.com/BioHazard786/watchparty/internal/ui"
)

// driver is the part of session.Machine the bridge feeds.
type driver interface {
	HandleMessage(msg *protocol.Message)
	LinkUp()
	LinkDown()
}

// bridge feeds link events to the session machine in arrival order, and
// reports status changes to onLink. It returns when events is closed or
// ctx is done.
func bridge(ctx context.Context, events <-chan client.Event, d driver, onLink func(ui.LinkMsg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Message != nil {
				d.HandleMessage(ev.Message)
				continue
			}

			switch ev.Status {
			case client.StatusConnected:
				d.LinkUp()
			case client.StatusReconnecting, client.StatusDisconnected:
				d.LinkDown()
			}
			if onLink != nil {
				onLink(ui.LinkMsg{Status: ev.Status, Attempt: ev.Attempt, Delay: ev.Delay, Err: ev.Err})
			}
		}
	}
}

// relaySnapshots forwards every machine snapshot to the status view.
func relaySnapshots(ctx context.Context, updates <-chan session.Snapshot, show func(session.Snapshot)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			show(s)
		}
	}
}
