package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/picklists/internal/api"
	"github.com/eugenenazirov/picklists/internal/config"
	"github.com/eugenenazirov/picklists/internal/metrics"
	"github.com/eugenenazirov/picklists/internal/packer"
	"github.com/eugenenazirov/picklists/internal/storage"
)

// App encapsulates the HTTP service dependencies and server.
type App struct {
	storage storage.Storage
	metrics *metrics.Metrics
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the HTTP service with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if err := store.SetCapacity(cfg.Capacity); err != nil {
		return nil, fmt.Errorf("failed to apply initial capacity: %w", err)
	}

	m := metrics.New()
	handler := api.NewHandler(store,
		api.WithHandlerLogger(logger),
		api.WithPackerOptions(
			packer.WithWorkers(cfg.Workers),
			packer.WithObserver(m),
		),
	)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithMetricsHandler(m.Handler()),
	)

	return &App{
		storage: store,
		metrics: m,
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
// Serve errors other than http.ErrServerClosed are delivered on the returned channel.
func (a *App) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
