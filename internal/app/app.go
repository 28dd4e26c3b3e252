package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/session"
	"github.com/vovakirdan/chatrelay/internal/store"
	"github.com/vovakirdan/chatrelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatrelay/internal/transport/http"
	"github.com/vovakirdan/chatrelay/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	cfg        config.Config
	tcpServer  *tcp.Server
	httpServer *stdhttp.Server
	hub        *core.Hub
	store      store.Store
	log        *zerolog.Logger
}

// New constructs the application with provided configuration. History
// persisted by a previous run is loaded before any listener starts.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	hist := history.New(st, cfg.HistoryLimit, history.WithLogger(logger))
	if err := hist.Load(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}

	hub := core.NewHub(hist, core.WithLogger(logger), core.WithBacklog(cfg.HistoryBacklog))
	sessions := session.NewHandler(hub, auth.NewService(st), session.Config{
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
		RateLimit:    cfg.RateLimit,
	}, logger)

	a := &App{
		cfg:       *cfg,
		tcpServer: tcp.NewServer(cfg.Addr, cfg.MaxFrameBytes, sessions, logger),
		hub:       hub,
		store:     st,
		log:       logger,
	}

	if cfg.HTTPAddr != "" {
		a.httpServer = transporthttp.NewServer(cfg.HTTPAddr, cfg.ReadHeaderTimeout, transporthttp.Deps{
			Hub:      hub,
			History:  hist,
			Sessions: sessions,
			JWT:      OperatorJWT(cfg),
			MaxFrame: cfg.MaxFrameBytes,
		}, logger)
	}

	return a, nil
}

// OperatorJWT derives the operator token settings from cfg.
func OperatorJWT(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.OperatorSecret),
		Issuer:   cfg.OperatorIssuer,
		Audience: cfg.OperatorIssuer,
		TTL:      cfg.OperatorTokenTTL,
	}
}

// TCPAddr returns the bound chat listener address once it is serving.
func (a *App) TCPAddr() net.Addr {
	return a.tcpServer.ListenAddr()
}

// Run starts the listeners and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("starting chat listener")
		if err := a.tcpServer.ListenAndServe(); err != nil && !errors.Is(err, tcp.ErrServerClosed) {
			return fmt.Errorf("tcp listener: %w", err)
		}
		return nil
	})

	if a.httpServer != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("starting http server")
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// shutdown drops every session without notices, then stops the listeners.
func (a *App) shutdown() error {
	a.log.Info().Msg("shutting down")
	a.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.tcpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tcp shutdown: %w", err))
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
