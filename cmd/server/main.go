package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhejian/cipherlink/internal/config"
	"github.com/zhejian/cipherlink/internal/events"
	"github.com/zhejian/cipherlink/internal/infra"
	"github.com/zhejian/cipherlink/internal/observability"
	"github.com/zhejian/cipherlink/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()
	logger := obs.Logger
	slog.SetDefault(logger)

	if cfg.Database.RunMigrations {
		if err := infra.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	db, err := infra.NewPostgresPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected")

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	srv, err := server.NewServer(ctx, cfg, db, publisher, obs)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	logger.Info("base URL", slog.String("base_url", cfg.App.BaseURL))

	return server.Serve(ctx, srv, ln, logger)
}

// newPublisher connects to the broker when one is configured. Without one,
// click events are dropped.
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Events.AMQPURL == "" {
		logger.Info("click events disabled, no AMQP_URL set")
		return events.NoopPublisher{}, nil
	}

	conn, err := infra.NewAMQPConnection(cfg.Events.AMQPURL)
	if err != nil {
		return nil, err
	}
	p, err := events.NewAMQPPublisher(conn, cfg.Events.Exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("click events enabled", slog.String("exchange", cfg.Events.Exchange))
	return &connPublisher{AMQPPublisher: p, close: conn.Close}, nil
}

// connPublisher closes the broker connection along with the channel.
type connPublisher struct {
	*events.AMQPPublisher
	close func() error
}

func (p *connPublisher) Close() error {
	_ = p.AMQPPublisher.Close()
	return p.close()
}
