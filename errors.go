package estcp

import (
	"io"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Error classes. Failures reported through callbacks or returned by Wait
// wrap exactly one of these, so callers can match with errors.Is.
var (
	// ErrConnect is wrapped by failures during Connect (dial, TLS handshake).
	ErrConnect = errors.New("connect failed")
	// ErrFraming is wrapped by invalid frame lengths and undecodable packages.
	ErrFraming = errors.New("package framing error")
	// ErrDispatch is wrapped by errors returned from the OnPackage handler.
	ErrDispatch = errors.New("package dispatch failed")
	// ErrWrite is wrapped by failures writing a queued package to the socket.
	ErrWrite = errors.New("package write failed")
)

// Errors returned synchronously by connection operations.
var (
	// ErrEmptyConnectionID is returned when no connection id is provided.
	ErrEmptyConnectionID = errors.New("connection id cannot be empty")
	// ErrEmptyTargetHost is returned when TLS is enabled without a target host.
	ErrEmptyTargetHost = errors.New("target host cannot be empty when using TLS")
	// ErrInvalidEndPoint is returned when the remote endpoint has no host or port.
	ErrInvalidEndPoint = errors.New("invalid remote endpoint")
	// ErrInvalidOnPackage is returned when no package handler is provided.
	ErrInvalidOnPackage = errors.New("invalid on package callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrAlreadyConnected is returned when Connect is called more than once.
	ErrAlreadyConnected = errors.New("connection already used")
	// ErrAlreadyReceiving is returned when StartReceiving is called twice.
	ErrAlreadyReceiving = errors.New("connection already receiving")
	// ErrPackageTooLarge is returned when an encoded package exceeds the maximum frame size.
	ErrPackageTooLarge = errors.New("package too large")
	// ErrBufferFull is returned when the send buffer cannot accept more packages.
	ErrBufferFull = errors.New("send buffer full")
)

// IsConnectionError reports whether err indicates a broken or lost socket
// rather than a protocol problem.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var syscallErr *os.SyscallError
	return errors.As(err, &syscallErr)
}

// classError ties a failure to one of the error classes while keeping
// the underlying cause reachable through errors.Is and errors.As.
type classError struct {
	class error
	cause error
}

func (e *classError) Error() string {
	return e.class.Error() + ": " + e.cause.Error()
}

func (e *classError) Unwrap() []error {
	return []error{e.class, e.cause}
}

// classify wraps cause with a message and marks it as belonging to class.
func classify(class, cause error, format string, args ...any) error {
	return &classError{class: class, cause: errors.Wrapf(cause, format, args...)}
}
