package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/protocol"
	"github.com/BioHazard786/watchparty/internal/server/converter"
)

// Directory queries the relay's diagnostic HTTP surface.
type Directory struct {
	base string
	http *http.Client
}

// NewDirectory returns a Directory for the relay at base, e.g.
// http://localhost:8080.
func NewDirectory(base string, resolver *dns.Resolver) *Directory {
	if resolver == nil {
		resolver = dns.NewResolver()
	}
	return &Directory{
		base: base,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DialContext: resolver.DialContext},
		},
	}
}

func (d *Directory) Status(ctx context.Context) (*converter.StatusResponse, error) {
	var out converter.StatusResponse
	if err := d.get(ctx, "/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Rooms(ctx context.Context) (*converter.RoomsResponse, error) {
	var out converter.RoomsResponse
	if err := d.get(ctx, "/rooms", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Room returns one room, or ErrRoomNotFound.
func (d *Directory) Room(ctx context.Context, roomID string) (*converter.RoomResponse, error) {
	var out converter.RoomResponse
	path := "/rooms/" + url.PathEscape(protocol.NormalizeRoomID(roomID))
	if err := d.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+path, nil)
	if err != nil {
		return &LinkError{Op: "query relay", Err: err}
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return &LinkError{Op: "query relay", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &LinkError{Op: "query relay", Err: ErrRoomNotFound}
	case resp.StatusCode != http.StatusOK:
		return &LinkError{Op: "query relay", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &LinkError{Op: "decode response", Err: err}
	}
	return nil
}
