package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout  = 1 * time.Second
	publicTimeout = 2 * time.Second
)

// publicDNS are servers to be queried if a local lookup fails
var publicDNS = []string{
	"1.1.1.1",              // Cloudflare
	"1.0.0.1",              // Cloudflare
	"2606:4700:4700::1111", // Cloudflare
	"8.8.8.8",              // Google
	"8.8.4.4",              // Google
	"2001:4860:4860::8888", // Google
	"9.9.9.9",              // Quad9
	"149.112.112.112",      // Quad9
	"208.67.222.222",       // Cisco OpenDNS
	"208.67.220.220",       // Cisco OpenDNS
}

var ErrNoAddress = errors.New("no IP addresses found")

// lookupFunc resolves a host with one particular resolver.
type lookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver looks a relay host up with the system resolver and races public
// DNS servers when that fails.
type Resolver struct {
	local  lookupFunc
	remote []lookupFunc
}

// NewResolver returns a Resolver using the system configuration first.
func NewResolver() *Resolver {
	remote := make([]lookupFunc, 0, len(publicDNS))
	for _, server := range publicDNS {
		remote = append(remote, publicLookup(server))
	}
	return &Resolver{
		local:  (&net.Resolver{}).LookupHost,
		remote: remote,
	}
}

// Lookup resolves host to a single IP address, preferring IPv4. IP literals
// are returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	// 1. Try Local/System DNS first
	localCtx, cancel := context.WithTimeout(ctx, localTimeout)
	ip, err := pick(r.local(localCtx, host))
	cancel()
	if err == nil {
		return ip, nil
	}

	// 2. Fallback to public DNS
	return r.race(ctx, host)
}

// race returns the first answer from the public DNS servers.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.remote) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, ErrNoAddress)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	results := make(chan result, len(r.remote))
	for _, lookup := range r.remote {
		go func(lookup lookupFunc) {
			ip, err := pick(lookup(ctx, host))
			results <- result{ip: ip, err: err}
		}(lookup)
	}

	failures := 0
	for range r.remote {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}

	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// DialContext resolves the host part of addr and dials the result. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func publicLookup(server string) lookupFunc {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	return r.LookupHost
}

// pick prefers an IPv4 address.
func pick(ips []string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
