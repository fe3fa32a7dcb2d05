package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Default configuration values
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultTURNUser  = "watchparty"
	DefaultTURNPass  = "watchparty-secret"
)

// DefaultSTUNServers are Google's public STUN servers.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
}

// Client holds the watchparty CLI configuration
type Client struct {
	// ServerURL is the relay websocket endpoint
	ServerURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	// ForceRelay restricts ICE to TURN candidates when a TURN server is set.
	ForceRelay bool

	// Reconnection backoff: min(ReconnectBase * 2^attempt, ReconnectCap)
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int

	NegotiationTimeout time.Duration
	OfferDelay         time.Duration
	ReannounceDelay    time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL          string
	STUNServers        []string
	TURNServer         string
	TURNUser           string
	TURNPass           string
	ForceRelay         bool
	NegotiationTimeout time.Duration
}

// clientEnv is the environment layer, with defaults filled by cleanenv.
type clientEnv struct {
	ServerURL            string        `env:"SERVER_URL"`
	STUNServers          []string      `env:"STUN_SERVERS" env-separator:","`
	TURNServer           string        `env:"TURN_SERVER"`
	TURNUser             string        `env:"TURN_USERNAME"`
	TURNPass             string        `env:"TURN_PASSWORD"`
	ForceRelay           bool          `env:"FORCE_RELAY" env-default:"false"`
	ReconnectBase        time.Duration `env:"RECONNECT_BASE" env-default:"1s"`
	ReconnectCap         time.Duration `env:"RECONNECT_CAP" env-default:"10s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" env-default:"5"`
	NegotiationTimeout   time.Duration `env:"NEGOTIATION_TIMEOUT" env-default:"30s"`
	OfferDelay           time.Duration `env:"OFFER_DELAY" env-default:"500ms"`
	ReannounceDelay      time.Duration `env:"REANNOUNCE_DELAY" env-default:"1s"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Client, error) {
	var env clientEnv
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := &Client{
		ServerURL:            pick(opts.ServerURL, env.ServerURL, DefaultServerURL),
		STUNServers:          env.STUNServers,
		TURNServer:           pick(opts.TURNServer, env.TURNServer),
		TURNUser:             pick(opts.TURNUser, env.TURNUser, DefaultTURNUser),
		TURNPass:             pick(opts.TURNPass, env.TURNPass, DefaultTURNPass),
		ForceRelay:           opts.ForceRelay || env.ForceRelay,
		ReconnectBase:        env.ReconnectBase,
		ReconnectCap:         env.ReconnectCap,
		MaxReconnectAttempts: env.MaxReconnectAttempts,
		NegotiationTimeout:   env.NegotiationTimeout,
		OfferDelay:           env.OfferDelay,
		ReannounceDelay:      env.ReannounceDelay,
	}

	if len(opts.STUNServers) > 0 {
		cfg.STUNServers = opts.STUNServers
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
	if opts.NegotiationTimeout > 0 {
		cfg.NegotiationTimeout = opts.NegotiationTimeout
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.ServerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url %q must use ws or wss", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server url %q has no host", c.ServerURL)
	}
	if c.ReconnectBase <= 0 || c.ReconnectCap < c.ReconnectBase {
		return fmt.Errorf("invalid reconnect backoff %s..%s", c.ReconnectBase, c.ReconnectCap)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("invalid max reconnect attempts %d", c.MaxReconnectAttempts)
	}
	return nil
}

// HTTPBaseURL returns the relay's diagnostic HTTP base for the websocket
// endpoint, e.g. ws://host:8080/ws becomes http://host:8080.
func (c *Client) HTTPBaseURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}

	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// ServerHost returns the relay host without port.
func (c *Client) ServerHost() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
