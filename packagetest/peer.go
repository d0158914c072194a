package packagetest

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/estcp"
)

// Peer is the server side of one accepted connection. It is meant to be
// used from the goroutine running the Handler.
type Peer struct {
	conn    net.Conn
	framer  *estcp.Framer
	pending []estcp.Package
	buf     []byte
}

func newPeer(conn net.Conn) *Peer {
	p := &Peer{
		conn: conn,
		buf:  make([]byte, 4096),
	}
	p.framer = estcp.NewFramer(0, func(frame []byte) error {
		pkg, err := estcp.Decode(frame)
		if err != nil {
			return err
		}
		p.pending = append(p.pending, pkg)
		return nil
	})
	return p
}

// ReadPackage blocks until the client sends a complete package.
func (p *Peer) ReadPackage() (estcp.Package, error) {
	for len(p.pending) == 0 {
		n, err := p.conn.Read(p.buf)
		if n > 0 {
			if ferr := p.framer.Unframe(p.buf[:n]); ferr != nil {
				return estcp.Package{}, ferr
			}
		}
		if err != nil && len(p.pending) == 0 {
			return estcp.Package{}, errors.Wrap(err, "read package")
		}
	}

	pkg := p.pending[0]
	p.pending = p.pending[1:]
	return pkg, nil
}

// ReadRaw reads whatever bytes arrive next, without framing.
func (p *Peer) ReadRaw(buf []byte) (int, error) {
	return p.conn.Read(buf)
}

// WritePackage sends pkg as one length-prefixed frame.
func (p *Peer) WritePackage(pkg estcp.Package) error {
	_, err := p.conn.Write(estcp.Frame(estcp.Encode(pkg)))
	return errors.Wrap(err, "write package")
}

// WriteRaw sends b unmodified, for malformed or split frames.
func (p *Peer) WriteRaw(b []byte) error {
	_, err := p.conn.Write(b)
	return errors.Wrap(err, "write raw")
}

// SetDeadline sets the read and write deadline of the underlying socket.
func (p *Peer) SetDeadline(t time.Time) error {
	return p.conn.SetDeadline(t)
}

// RemoteAddr returns the client address.
func (p *Peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// Close closes the socket. Safe to call more than once.
func (p *Peer) Close() error {
	return p.conn.Close()
}
