package dns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(ips []string, err error) lookupFunc {
	return func(context.Context, string) ([]string, error) { return ips, err }
}

func TestLookupIPLiteral(t *testing.T) {
	r := &Resolver{local: static(nil, errors.New("must not be called"))}

	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	ip, err = r.Lookup(context.Background(), "::1")
	require.NoError(t, err)
	assert.Equal(t, "::1", ip)
}

func TestLookupPrefersIPv4(t *testing.T) {
	r := &Resolver{local: static([]string{"2001:db8::1", "192.0.2.7"}, nil)}

	ip, err := r.Lookup(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", ip)
}

func TestLookupFallsBackToPublicRace(t *testing.T) {
	slow := func(ctx context.Context, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := &Resolver{
		local: static(nil, errors.New("no system resolver")),
		remote: []lookupFunc{
			static(nil, errors.New("refused")),
			slow,
			static([]string{"198.51.100.2"}, nil),
		},
	}

	start := time.Now()
	ip, err := r.Lookup(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.2", ip)
	assert.Less(t, time.Since(start), publicTimeout)
}

func TestLookupAllFail(t *testing.T) {
	r := &Resolver{
		local:  static(nil, errors.New("nope")),
		remote: []lookupFunc{static(nil, errors.New("a")), static([]string{}, nil)},
	}

	_, err := r.Lookup(context.Background(), "relay.example")
	assert.ErrorContains(t, err, "all 2 public DNS servers failed")
}
