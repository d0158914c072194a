package packagetest

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Zereker/estcp"
)

func TestNewServer(t *testing.T) {
	server, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.listener == nil {
		t.Error("listener is nil")
	}

	ep := server.EndPoint()
	if ep.Host != "127.0.0.1" {
		t.Errorf("host = %s, want 127.0.0.1", ep.Host)
	}
	if ep.Port == 0 {
		t.Error("port not assigned")
	}
}

func TestServer_Close(t *testing.T) {
	server, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if err := server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Second close is a no-op
	if err := server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestServer_Serve_ContextCanceled(t *testing.T) {
	server, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, HandlerFunc(func(*Peer) {}))
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestServer_Echo(t *testing.T) {
	server, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	server.Start(HandlerFunc(func(peer *Peer) {
		for {
			pkg, err := peer.ReadPackage()
			if err != nil {
				return
			}
			if err := peer.WritePackage(pkg); err != nil {
				return
			}
		}
	}))

	conn, err := net.DialTimeout("tcp", server.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	sent := estcp.NewPackage(estcp.Ping, uuid.New(), []byte("hello"))
	frame := estcp.Frame(estcp.Encode(sent))

	// Split the frame in two writes to exercise reassembly on the server.
	if _, err := conn.Write(frame[:3]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := conn.Write(frame[3:]); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, len(frame))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	got, err := estcp.Decode(buf[estcp.LengthPrefixSize:])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.CorrelationID() != sent.CorrelationID() {
		t.Errorf("correlation id = %s, want %s", got.CorrelationID(), sent.CorrelationID())
	}
	if string(got.Payload()) != "hello" {
		t.Errorf("payload = %q, want hello", got.Payload())
	}
}

func TestServer_CloseUnblocksHandlers(t *testing.T) {
	server, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	handled := make(chan struct{})
	returned := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), HandlerFunc(func(peer *Peer) {
			close(handled)
			_, _ = peer.ReadPackage()
			close(returned)
		}))
	}()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	server.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}

	select {
	case <-returned:
	default:
		t.Error("handler still running after Serve returned")
	}
}
