package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/cipherlink/internal/api"
	"github.com/zhejian/cipherlink/internal/config"
	"github.com/zhejian/cipherlink/internal/crypto"
	"github.com/zhejian/cipherlink/internal/events"
	"github.com/zhejian/cipherlink/internal/middleware"
	"github.com/zhejian/cipherlink/internal/observability"
	"github.com/zhejian/cipherlink/internal/repository"
	"github.com/zhejian/cipherlink/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewRouter wires the store, encryptor, service and handler and returns a
// configured Gin router. It fails if the key is unusable or the store's
// unique indexes cannot be ensured.
func NewRouter(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, publisher events.Publisher, obs *observability.Observability) (*gin.Engine, error) {
	enc, err := crypto.NewEncryptorFromBase64(cfg.App.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	repo := repository.NewURLRepository(db)
	urlService, err := service.NewURLService(ctx, repo, enc, publisher, obs.Logger, cfg.App.ShortCodeRetries)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Observability.ServiceName, otelgin.WithTracerProvider(obs.TracerProvider)),
		middleware.Logging(obs.Logger),
		middleware.CORS(),
	)
	r.GET("/metrics", gin.WrapH(obs.MetricsHandler()))

	api.NewHandler(urlService, repo, cfg.App.BaseURL, obs.Logger).RegisterRoutes(r)
	return r, nil
}

// NewServer returns the HTTP server for the router built by NewRouter.
func NewServer(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, publisher events.Publisher, obs *observability.Observability) (*http.Server, error) {
	router, err := NewRouter(ctx, cfg, db, publisher, obs)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

// Serve runs srv on ln until ctx is cancelled, then shuts it down
// gracefully. It returns the first error from serving or shutting down.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
