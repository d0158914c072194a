package estcp

import (
	"context"
	"crypto/x509"
	"net"
	"time"
)

// Dialer opens the raw byte stream to the remote endpoint.
// *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// options holds the configuration for a connection.
type options struct {
	logger Logger
	dialer Dialer

	ssl            bool
	targetHost     string
	validateServer bool
	rootCAs        *x509.CertPool

	connectTimeout time.Duration
	bufferSize     int // size of the outbound package channel
	readBufferSize int // size of a single socket read
	maxFrameSize   int // maximum size of a single frame body
}

// Option is a function that configures connection options.
type Option func(*options)

// Default configuration values.
const (
	// defaultBufferSize is the default number of packages queued for writing.
	defaultBufferSize = 512
	// defaultReadBufferSize is the default socket read size (64KB).
	defaultReadBufferSize = 64 * 1024
	// defaultConnectTimeout bounds dialing and the TLS handshake.
	defaultConnectTimeout = 5 * time.Second
)

func defaultOptions() options {
	return options{validateServer: true}
}

// TLSOption enables TLS. targetHost is the server name the peer
// certificate is validated against and must not be empty.
func TLSOption(targetHost string) Option {
	return func(o *options) {
		o.ssl = true
		o.targetHost = targetHost
	}
}

// ValidateServerOption toggles peer certificate validation for TLS
// connections. Validation is on unless explicitly disabled.
func ValidateServerOption(validate bool) Option {
	return func(o *options) {
		o.validateServer = validate
	}
}

// RootCAsOption sets the certificate pool used to validate the server.
// If not set, the host's root set is used.
func RootCAsOption(pool *x509.CertPool) Option {
	return func(o *options) {
		o.rootCAs = pool
	}
}

// ConnectTimeoutOption returns an Option that bounds dialing and the TLS handshake.
func ConnectTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more packages to be queued before EnqueueSend fails.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadBufferSizeOption returns an Option that sets how many bytes a single
// socket read may return.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the maximum frame size.
// Larger inbound frames close the connection; larger outbound packages are rejected.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DialerOption replaces the dialer used to open the TCP stream.
func DialerOption(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.ssl && opts.targetHost == "" {
		return ErrEmptyTargetHost
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = DefaultMaxFrameSize
	}

	if opts.connectTimeout <= 0 {
		opts.connectTimeout = defaultConnectTimeout
	}

	if opts.dialer == nil {
		opts.dialer = &net.Dialer{}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}
