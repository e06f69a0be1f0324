// Package app provides the top-level application lifecycle for the auction
// service. It wires together the stores, redis infrastructure, blob storage,
// the bid engine, and the HTTP server, and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitnscore/auctiond/internal/config"
	"github.com/hitnscore/auctiond/internal/server"
	"github.com/hitnscore/auctiond/internal/server/handler"
	"github.com/hitnscore/auctiond/internal/server/ws"
	"github.com/hitnscore/auctiond/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// WebSocket hub and HTTP server goroutines, and blocks until the context is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svc := service.NewAuctionService(
		deps.Ledger,
		deps.Registry,
		deps.Locks,
		service.Config{
			MinIncrement:    a.cfg.Auction.MinIncrement,
			LockTTL:         a.cfg.Auction.LockTTL(),
			LockAttempts:    a.cfg.Auction.LockAttempts,
			AppendAttempts:  a.cfg.Auction.AppendAttempts,
			TeamBidLimit:    a.cfg.Auction.TeamBidLimit,
			TeamBidWindow:   a.cfg.Auction.TeamBidWindow(),
			HistoryLimit:    a.cfg.Auction.HistoryLimit,
			HistoryMaxLimit: a.cfg.Auction.HistoryMaxLimit,
			LiveLimit:       a.cfg.Auction.LiveLimit,
			LiveMaxLimit:    a.cfg.Auction.LiveMaxLimit,
		},
		a.logger,
	).
		WithLimiter(deps.Limiter).
		WithSignalBus(deps.Bus)

	if deps.Blobs != nil {
		svc = svc.WithArchive(deps.Blobs)
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Auction: handler.NewAuctionHandler(svc, a.logger),
	}

	hub := ws.NewHub(deps.Bus, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow(),
	}, handlers, hub, deps.Limiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
