package estcp

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the file form of a connection's construction parameters.
type Config struct {
	ConnectionID   string
	EndPoint       EndPoint
	SSL            bool
	TargetHost     string
	ValidateServer bool
	ConnectTimeout time.Duration
	MaxFrameSize   int
	BufferSize     int
}

type fileConfig struct {
	ConnectionID   string `toml:"connection_id"`
	EndPoint       string `toml:"endpoint"`
	SSL            bool   `toml:"ssl"`
	TargetHost     string `toml:"target_host"`
	ValidateServer bool   `toml:"validate_server"`
	ConnectTimeout string `toml:"connect_timeout"`
	MaxFrameSize   int    `toml:"max_frame_size"`
	BufferSize     int    `toml:"buffer_size"`
}

// DefaultConfig returns a config for a local plain-TCP server.
func DefaultConfig() Config {
	return Config{
		ConnectionID:   "estcp",
		EndPoint:       EndPoint{Host: "127.0.0.1", Port: 1113},
		ValidateServer: true,
		ConnectTimeout: defaultConnectTimeout,
		MaxFrameSize:   DefaultMaxFrameSize,
		BufferSize:     defaultBufferSize,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load estcp config")
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("load estcp config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("connection_id") {
		cfg.ConnectionID = strings.TrimSpace(raw.ConnectionID)
	}

	if meta.IsDefined("endpoint") {
		ep, err := ParseEndPoint(strings.TrimSpace(raw.EndPoint))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse endpoint")
		}
		cfg.EndPoint = ep
	}

	if meta.IsDefined("ssl") {
		cfg.SSL = raw.SSL
	}

	if meta.IsDefined("target_host") {
		cfg.TargetHost = strings.TrimSpace(raw.TargetHost)
	}

	if meta.IsDefined("validate_server") {
		cfg.ValidateServer = raw.ValidateServer
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse connect_timeout")
		}
		cfg.ConnectTimeout = d
	}

	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}

	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports the first construction error cfg would cause.
func (c Config) Validate() error {
	if c.ConnectionID == "" {
		return ErrEmptyConnectionID
	}
	if err := c.EndPoint.validate(); err != nil {
		return err
	}
	if c.SSL && c.TargetHost == "" {
		return ErrEmptyTargetHost
	}
	if c.ConnectTimeout < 0 {
		return errors.Errorf("connect_timeout must not be negative: %s", c.ConnectTimeout)
	}
	if c.MaxFrameSize < 0 || c.MaxFrameSize > DefaultMaxFrameSize {
		return errors.Errorf("max_frame_size must be between 0 and %d: %d", DefaultMaxFrameSize, c.MaxFrameSize)
	}
	if c.BufferSize < 0 {
		return errors.Errorf("buffer_size must not be negative: %d", c.BufferSize)
	}
	return nil
}

// Options converts cfg to connection options.
func (c Config) Options() []Option {
	opts := []Option{
		ValidateServerOption(c.ValidateServer),
		ConnectTimeoutOption(c.ConnectTimeout),
		MessageMaxSize(c.MaxFrameSize),
		BufferSizeOption(c.BufferSize),
	}
	if c.SSL {
		opts = append(opts, TLSOption(c.TargetHost))
	}
	return opts
}

// NewConnection builds a Connection from cfg. Options in extra are applied
// after the ones derived from cfg.
func (c Config) NewConnection(handlers Handlers, extra ...Option) (*Connection, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewConnection(c.EndPoint, c.ConnectionID, handlers, append(c.Options(), extra...)...)
}
