package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Server is the relay configuration. Values come from the environment and,
// when a path is given, a YAML file.
type Server struct {
	Env            string        `yaml:"env" env:"ENV" env-default:"local"`
	Port           int           `yaml:"port" env:"PORT" env-default:"8080"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"30s"`
	SendQueueSize  int           `yaml:"send_queue_size" env:"SEND_QUEUE_SIZE" env-default:"256"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE" env-default:"65536"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"*" env-separator:","`
}

// LoadServer reads the relay configuration. An empty path reads the
// environment only.
func LoadServer(path string) (*Server, error) {
	var cfg Server

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoadServer loads the relay configuration from the file named by the
// -config flag or CONFIG_PATH, falling back to the environment.
func MustLoadServer() *Server {
	cfg, err := LoadServer(fetchConfigPath())
	if err != nil {
		panic("cannot load config: " + err.Error())
	}
	return cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}

func (c *Server) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.SendQueueSize <= 0 {
		return errors.New("send queue size must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max message size must be positive")
	}

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.AllowedOrigins = origins
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Server) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AllowAllOrigins reports whether CORS and websocket origin checks are open.
func (c *Server) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
