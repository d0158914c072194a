package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Zereker/estcp"
	"github.com/Zereker/estcp/packagetest"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML connection config")
	local := flag.Bool("local", false, "answer the ping with an in-process server")
	timeout := flag.Duration("timeout", 5*time.Second, "time to wait for the pong")
	flag.Parse()

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
	logger := estcp.NewZerologLogger(zl)

	cfg := estcp.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = estcp.LoadConfig(*configPath); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	if *local {
		server, err := packagetest.NewServer(packagetest.ServerLoggerOption(logger))
		if err != nil {
			logger.Error("failed to start local server", "error", err)
			os.Exit(1)
		}
		defer server.Close()

		server.Start(packagetest.HandlerFunc(answerPings))
		cfg.EndPoint = server.EndPoint()
		cfg.SSL = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ping(ctx, cfg, logger, *timeout); err != nil {
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}
}

func ping(ctx context.Context, cfg estcp.Config, logger estcp.Logger, timeout time.Duration) error {
	id := uuid.New()
	done := make(chan error, 1)
	report := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	var sentAt time.Time
	conn, err := cfg.NewConnection(estcp.Handlers{
		OnPackage: func(conn *estcp.Connection, pkg estcp.Package) error {
			if pkg.Command() == estcp.HeartbeatRequest {
				return conn.EnqueueSend(estcp.NewPackage(estcp.HeartbeatResponse, pkg.CorrelationID(), nil))
			}
			if pkg.Command() == estcp.Pong && pkg.CorrelationID() == id {
				logger.Info("pong received", "correlation_id", id.String(), "rtt", time.Since(sentAt))
				report(nil)
			}
			return nil
		},
		OnError: func(conn *estcp.Connection, err error) {
			report(err)
		},
		OnEstablished: func(conn *estcp.Connection) {
			if err := conn.StartReceiving(); err != nil {
				report(err)
				return
			}
			sentAt = time.Now()
			if err := conn.EnqueueSend(estcp.NewPackage(estcp.Ping, id, nil)); err != nil {
				report(err)
			}
		},
		OnClosed: func(conn *estcp.Connection, err error) {
			report(err)
		},
	}, estcp.LoggerOption(logger))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// answerPings replies to every Ping with a Pong carrying the same
// correlation id.
func answerPings(peer *packagetest.Peer) {
	for {
		pkg, err := peer.ReadPackage()
		if err != nil {
			return
		}
		if pkg.Command() != estcp.Ping {
			continue
		}
		if err := peer.WritePackage(estcp.NewPackage(estcp.Pong, pkg.CorrelationID(), nil)); err != nil {
			return
		}
	}
}
