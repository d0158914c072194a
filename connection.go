// Package estcp provides the client-side TCP transport for the event
// store protocol. It frames packages with a little-endian length prefix,
// reassembles inbound byte streams into packages, and reports connection
// lifecycle events through callbacks.
package estcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type connState int

const (
	stateUnconnected connState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Handlers are the callbacks a Connection reports to. They are bound once
// at construction and never invoked concurrently with each other.
type Handlers struct {
	// OnPackage is called for every package received, in wire order.
	// Returning an error closes the connection and reports it to OnError.
	OnPackage func(conn *Connection, pkg Package) error
	// OnError is called once when OnPackage fails.
	OnError func(conn *Connection, err error)
	// OnEstablished is called once after a successful Connect.
	OnEstablished func(conn *Connection)
	// OnClosed is called once when connecting, reading or writing fails.
	OnClosed func(conn *Connection, err error)
}

// Connection owns one TCP or TLS socket to the event store.
//
// A Connection moves from unconnected to connected to closed and never
// back; reconnecting requires a new Connection. Exactly one of OnClosed
// and OnError fires for a failure, and none fires after Close.
type Connection struct {
	id       string
	remote   EndPoint
	handlers Handlers
	logger   Logger
	opts     options

	framer  *Framer
	sendMsg chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu        sync.Mutex
	state     connState
	rawConn   net.Conn
	receiving bool

	cbMu sync.Mutex // serializes handler invocations
}

// NewConnection creates an unconnected Connection to remote.
// It fails if connectionID is empty, remote is invalid, OnPackage is nil,
// or TLS is enabled without a target host.
func NewConnection(remote EndPoint, connectionID string, handlers Handlers, opt ...Option) (*Connection, error) {
	if connectionID == "" {
		return nil, ErrEmptyConnectionID
	}

	if err := remote.validate(); err != nil {
		return nil, err
	}

	if handlers.OnPackage == nil {
		return nil, ErrInvalidOnPackage
	}

	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	setDefaultHandlers(&handlers)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       connectionID,
		remote:   remote,
		handlers: handlers,
		logger:   opts.logger,
		opts:     opts,
		sendMsg:  make(chan []byte, opts.bufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.framer = NewFramer(opts.maxFrameSize, c.packageArrived)

	return c, nil
}

func setDefaultHandlers(h *Handlers) {
	if h.OnError == nil {
		h.OnError = func(*Connection, error) {}
	}
	if h.OnEstablished == nil {
		h.OnEstablished = func(*Connection) {}
	}
	if h.OnClosed == nil {
		h.OnClosed = func(*Connection, error) {}
	}
}

// ConnectionID returns the id given at construction.
func (c *Connection) ConnectionID() string {
	return c.id
}

// RemoteEndPoint returns the endpoint given at construction.
func (c *Connection) RemoteEndPoint() EndPoint {
	return c.remote
}

// LocalAddr returns the local socket address, or nil before connecting.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rawConn == nil {
		return nil
	}
	return c.rawConn.LocalAddr()
}

// IsClosed reports whether the connection is not currently connected.
// It is true before the first successful Connect and after any close.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state != stateConnected
}

func (c *Connection) String() string {
	return fmt.Sprintf("[%s, %s]", c.remote, c.id)
}

// Connect starts connecting in the background and returns immediately.
// The outcome is reported through OnEstablished or OnClosed. ctx bounds
// the attempt only, together with the configured connect timeout.
// Connect returns ErrAlreadyConnected if the Connection was used before.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateUnconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = stateConnecting
	c.mu.Unlock()

	c.group.Go(func() error {
		return c.connect(ctx)
	})

	return nil
}

func (c *Connection) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()
	// Close aborts a pending dial or handshake.
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.logger.Debug("connecting", c.logArgs("ssl", c.opts.ssl, "timeout", c.opts.connectTimeout)...)

	conn, err := c.dial(ctx)
	if err != nil {
		err = classify(ErrConnect, err, "connect to %s", c.remote)
		if ok, _ := c.shutdown(); !ok {
			return nil
		}
		c.logger.Debug("connection failed", c.logArgs("error", err)...)
		c.closedWith(err)
		return err
	}

	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		c.logger.Debug("connection closed while connecting", c.logArgs()...)
		return nil
	}
	c.rawConn = conn
	c.state = stateConnected
	c.mu.Unlock()

	c.group.Go(func() error {
		return c.writeLoop(conn)
	})

	c.logger.Info("connection established", c.logArgs("local_addr", conn.LocalAddr())...)

	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.handlers.OnEstablished(c)

	return nil
}

// dial opens the TCP stream and, if configured, completes the TLS handshake.
func (c *Connection) dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.opts.dialer.DialContext(ctx, "tcp", c.remote.String())
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	if !c.opts.ssl {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         c.opts.targetHost,
		RootCAs:            c.opts.rootCAs,
		InsecureSkipVerify: !c.opts.validateServer,
		MinVersion:         tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}

	return tlsConn, nil
}

// EnqueueSend queues pkg for writing without blocking (fire-and-forget).
// Packages are written in the order they are queued.
//
// Returns:
//   - nil: package was queued (not yet written)
//   - ErrConnectionClosed: connection is not connected
//   - ErrPackageTooLarge: package exceeds the maximum frame size
//   - ErrBufferFull: send buffer is full, package was NOT queued
//
// A failed write is reported through OnClosed and the package is dropped.
func (c *Connection) EnqueueSend(pkg Package) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := encodeFrame(pkg, c.opts.maxFrameSize)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendBlocking queues pkg, waiting for buffer space until ctx is done or
// the connection closes.
func (c *Connection) SendBlocking(ctx context.Context, pkg Package) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := encodeFrame(pkg, c.opts.maxFrameSize)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop writes queued frames until the connection closes.
func (c *Connection) writeLoop(conn net.Conn) error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case frame := <-c.sendMsg:
			if _, err := conn.Write(frame); err != nil {
				err = classify(ErrWrite, err, "write to %s", c.remote)
				if ok, _ := c.shutdown(); !ok {
					return nil
				}
				c.logger.Debug("write failed", c.logArgs("error", err)...)
				c.closedWith(err)
				return err
			}
		}
	}
}

// StartReceiving starts the receive loop. Every complete frame is decoded
// and passed to OnPackage. It may be called once, while connected.
func (c *Connection) StartReceiving() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateConnected {
		return ErrConnectionClosed
	}
	if c.receiving {
		return ErrAlreadyReceiving
	}
	c.receiving = true

	conn := c.rawConn
	c.group.Go(func() error {
		return c.readLoop(conn)
	})

	return nil
}

// readLoop feeds socket reads to the framer until the stream ends,
// the connection closes, or a frame cannot be processed.
func (c *Connection) readLoop(conn net.Conn) error {
	buf := make([]byte, c.opts.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := c.framer.Unframe(buf[:n]); ferr != nil {
				return c.receiveFailed(ferr)
			}
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if ok, _ := c.shutdown(); ok {
				c.logger.Info("connection closed by remote", c.logArgs()...)
			}
			return nil
		}

		if ok, _ := c.shutdown(); !ok {
			return nil
		}
		err = errors.Wrapf(err, "read from %s", c.remote)
		c.logger.Debug("read failed", c.logArgs("error", err)...)
		c.closedWith(err)
		return err
	}
}

// packageArrived is the framer callback.
func (c *Connection) packageArrived(frame []byte) error {
	pkg, err := Decode(frame)
	if err != nil {
		return err
	}

	// Frames after a Close from inside OnPackage are dropped.
	if c.IsClosed() {
		return nil
	}

	c.cbMu.Lock()
	err = c.handlers.OnPackage(c, pkg)
	c.cbMu.Unlock()

	if err != nil {
		return &dispatchError{pkg: pkg, err: classify(ErrDispatch, err, "handle %s", pkg.Command())}
	}
	return nil
}

// dispatchError carries the package whose handler failed, for logging.
type dispatchError struct {
	pkg Package
	err error
}

func (e *dispatchError) Error() string { return e.err.Error() }

func (e *dispatchError) Unwrap() error { return e.err }

// receiveFailed tears the connection down after a framing or dispatch
// failure and returns the cause for Wait.
func (c *Connection) receiveFailed(err error) error {
	var de *dispatchError
	if errors.As(err, &de) {
		if ok, _ := c.shutdown(); ok {
			c.logger.Debug("error when processing package, connection will be closed",
				c.logArgs("command", de.pkg.Command().String(), "correlation_id", de.pkg.CorrelationID().String(), "error", de.err)...)
			c.failedWith(de.err)
		}
		return de.err
	}

	if ok, _ := c.shutdown(); ok {
		c.logger.Error("invalid frame received", c.logArgs("error", err)...)
	}
	return err
}

// Close closes the connection. It is safe to call from any state, any
// number of times, and from inside handlers. Close never triggers a handler.
func (c *Connection) Close() error {
	ok, err := c.shutdown()
	if ok {
		c.logger.Info("connection closed", c.logArgs()...)
	}
	return err
}

// Wait blocks until every goroutine of the connection has exited and
// returns the failure that ended it, or nil for a clean close. Once
// Connect has been called, Wait returns only after the connection closed.
func (c *Connection) Wait() error {
	return c.group.Wait()
}

// shutdown moves the connection to closed, closing the socket. It reports
// false if the connection was already closed.
func (c *Connection) shutdown() (bool, error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return false, nil
	}
	c.state = stateClosed
	conn := c.rawConn
	c.mu.Unlock()

	c.cancel()

	if conn == nil {
		return true, nil
	}
	return true, conn.Close()
}

func (c *Connection) closedWith(err error) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.handlers.OnClosed(c, err)
}

func (c *Connection) failedWith(err error) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.handlers.OnError(c, err)
}

func (c *Connection) logArgs(args ...any) []any {
	return append([]any{"connection_id", c.id, "endpoint", c.remote.String()}, args...)
}
