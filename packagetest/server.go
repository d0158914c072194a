// Package packagetest provides a loopback event-store package server for
// exercising estcp connections in tests and examples.
package packagetest

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/estcp"
)

// Handler is the interface for handling accepted connections.
type Handler interface {
	// Handle is called in its own goroutine for each new connection.
	// The peer is closed when Handle returns.
	Handle(peer *Peer)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(peer *Peer)

// Handle calls f(peer).
func (f HandlerFunc) Handle(peer *Peer) { f(peer) }

// Server accepts connections on a loopback address.
type Server struct {
	listener  net.Listener
	logger    estcp.Logger
	tlsConfig *tls.Config

	mu       sync.Mutex
	shutdown bool
	peers    map[*Peer]struct{}
	group    errgroup.Group
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger estcp.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerTLSOption makes the server speak TLS with cfg.
func ServerTLSOption(cfg *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// NewServer creates a server bound to an ephemeral 127.0.0.1 port.
func NewServer(opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	s := &Server{
		logger: slog.Default(),
		peers:  make(map[*Peer]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.listener = listener
	if s.tlsConfig != nil {
		s.listener = tls.NewListener(listener, s.tlsConfig)
	}

	return s, nil
}

// Serve accepts connections and dispatches them to handler until ctx is
// canceled or Close is called. On return every peer has been closed and
// every handler has returned.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.closePeers()
				_ = s.group.Wait()
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}

		peer := newPeer(conn)
		if !s.track(peer) {
			_ = peer.Close()
			continue
		}

		s.group.Go(func() error {
			defer s.untrack(peer)
			defer peer.Close()
			handler.Handle(peer)
			return nil
		})
	}
}

// Start runs Serve in the background.
func (s *Server) Start(handler Handler) {
	go func() {
		_ = s.Serve(context.Background(), handler)
	}()
}

// Close stops the server by closing the underlying listener.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// EndPoint returns the listener's address as an estcp.EndPoint.
func (s *Server) EndPoint() estcp.EndPoint {
	addr := s.listener.Addr().(*net.TCPAddr)
	return estcp.EndPoint{Host: addr.IP.String(), Port: addr.Port}
}

func (s *Server) track(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}
	s.peers[p] = struct{}{}
	return true
}

func (s *Server) untrack(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peers, p)
}

func (s *Server) closePeers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.peers {
		_ = p.Close()
	}
}
