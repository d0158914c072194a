package estcp

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// EndPoint is the remote host and port a Connection talks to.
type EndPoint struct {
	Host string
	Port int
}

// ParseEndPoint parses "host:port".
func ParseEndPoint(s string) (EndPoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return EndPoint{}, errors.Wrapf(ErrInvalidEndPoint, "parse %q: %v", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return EndPoint{}, errors.Wrapf(ErrInvalidEndPoint, "parse port %q", portStr)
	}
	ep := EndPoint{Host: host, Port: port}
	if err := ep.validate(); err != nil {
		return EndPoint{}, err
	}
	return ep, nil
}

func (e EndPoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e EndPoint) validate() error {
	if e.Host == "" {
		return errors.Wrap(ErrInvalidEndPoint, "empty host")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return errors.Wrapf(ErrInvalidEndPoint, "port %d out of range", e.Port)
	}
	return nil
}
