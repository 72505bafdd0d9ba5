package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/alarm"
	"patientsync/internal/api"
	"patientsync/internal/config"
	"patientsync/internal/credentials"
	"patientsync/internal/hub"
	"patientsync/internal/journal"
	"patientsync/internal/metrics"
	"patientsync/internal/relay"
	"patientsync/internal/router"
	"patientsync/internal/session"
	"patientsync/internal/store"
	"patientsync/internal/websocket"
)

var (
	ErrAlreadyStarted = errors.New("application already started")
	ErrNotStarted     = errors.New("application not started")
)

// Application owns every component and their start/stop order.
type Application struct {
	cfg    *config.Config
	logger *zap.Logger

	store    *store.Store
	journal  *journal.Journal
	metrics  *metrics.Metrics
	registry *websocket.Registry
	hub      *hub.Hub
	sessions *session.Manager
	router   *router.Router
	mutator  *alarm.Mutator
	server   *api.Server

	httpServer *http.Server

	mu          sync.Mutex
	started     bool
	listener    net.Listener
	cancel      context.CancelFunc
	mutatorDone chan struct{}
	fatal       chan error
}

// NewApplication builds the component graph:
// store → journal → metrics → registry → hub → sessions → relay → router →
// websocket handler → API.
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hasher := credentials.New()
	st, err := store.NewSeeded(logger, hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	jcfg := journal.DefaultConfig()
	jcfg.Path = cfg.Journal.Path
	jcfg.WriteTimeout = cfg.Journal.Timeout
	j, err := journal.Open(jcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	m := metrics.New()
	registry := websocket.NewRegistry()
	m.TrackConnections(registry.ActiveCount)

	notifier := hub.NewHub(registry, m, logger)

	sessions, err := session.NewManager(session.Config{
		CookieName: cfg.Auth.CookieName,
		TTL:        cfg.Auth.SessionTTL,
		Secret:     []byte(cfg.Auth.Secret),
		Secure:     cfg.Auth.SecureCookie,
	}, logger)
	if err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	sessionRelay := relay.New(notifier, j, m, logger)
	invocations := router.NewRouter(sessionRelay, router.NewRateLimiter(cfg.WebSocket.RateLimit, time.Minute), m, logger)

	wsHandler := websocket.NewHandler(websocket.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
		CookieName:   cfg.Auth.CookieName,
	}, registry, sessions, invocations, logger)

	server := api.NewServer(api.Dependencies{
		Store:    st,
		Hasher:   hasher,
		Sessions: sessions,
		Registry: registry,
		Journal:  j,
		Metrics:  m.Handler(),
		Hub:      http.HandlerFunc(wsHandler.HandleWebSocket),
	}, cfg.HTTP.AllowedOrigins, logger)

	mutator := alarm.New(alarm.Config{Period: cfg.Alarm.Period}, st, notifier, j, m, logger)

	return &Application{
		cfg:      cfg,
		logger:   logger.Named("app"),
		store:    st,
		journal:  j,
		metrics:  m,
		registry: registry,
		hub:      notifier,
		sessions: sessions,
		router:   invocations,
		mutator:  mutator,
		server:   server,
		httpServer: &http.Server{
			Addr:         cfg.Address(),
			Handler:      server,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		fatal: make(chan error, 2),
	}, nil
}

// Start listens on the configured address and starts every component.
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve starts the hub, the alarm mutator and the HTTP server on ln. It
// returns once everything is running; runtime failures arrive on Fatal. An
// error means nothing was started and ln is closed.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.started {
		_ = ln.Close()
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		_ = ln.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := app.hub.Start(runCtx); err != nil {
		cancel()
		_ = ln.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}
	app.router.StartCleanup(runCtx)

	app.started = true
	app.cancel = cancel
	app.listener = ln
	app.mutatorDone = make(chan struct{})

	go func() {
		defer close(app.mutatorDone)
		if err := app.mutator.Run(runCtx); err != nil {
			app.logger.Error("alarm mutator failed, shutting down", zap.Error(err))
			app.fail(err)
		}
	}()

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server failed", zap.Error(err))
			app.fail(fmt.Errorf("HTTP server error: %w", err))
		}
	}()

	app.logger.Info("PatientSync started",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("alarm_period", app.cfg.Alarm.Period))
	return nil
}

func (app *Application) fail(err error) {
	select {
	case app.fatal <- err:
	default:
	}
}

// Fatal delivers errors that should end the process, such as the alarm
// mutator losing its store.
func (app *Application) Fatal() <-chan error {
	return app.fatal
}

// Stop shuts down in reverse order: HTTP, hub connections, mutator, hub,
// journal, store.
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.started {
		return ErrNotStarted
	}
	app.started = false

	app.logger.Info("shutting down PatientSync")
	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
		errs = append(errs, err)
	}
	app.registry.CloseAll()

	app.cancel()
	select {
	case <-app.mutatorDone:
	case <-ctx.Done():
		app.logger.Warn("alarm mutator did not stop in time")
		errs = append(errs, ctx.Err())
	}

	if err := app.hub.Stop(); err != nil {
		app.logger.Warn("hub shutdown error", zap.Error(err))
		errs = append(errs, err)
	}
	if err := app.journal.Close(); err != nil {
		app.logger.Warn("journal shutdown error", zap.Error(err))
		errs = append(errs, err)
	}
	app.store.Close()

	app.logger.Info("PatientSync shutdown complete")
	return errors.Join(errs...)
}

// Addr is the address being served, or the configured one before Start.
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler serves the full HTTP surface without a listener.
func (app *Application) Handler() http.Handler {
	return app.server
}

// Store exposes the shared store to embedding code and tests.
func (app *Application) Store() *store.Store {
	return app.store
}
