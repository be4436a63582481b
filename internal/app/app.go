package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/htmlmailer/internal/api"
	"github.com/foxzi/htmlmailer/internal/config"
	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/metrics"
	"github.com/foxzi/htmlmailer/internal/provider"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/ratelimit"
	mailerTLS "github.com/foxzi/htmlmailer/internal/tls"
)

// App is the main application
type App struct {
	config           *config.Config
	stores           *Stores
	apiServer        *api.Server
	logger           *slog.Logger
	tlsConfig        *tls.Config
	acmeManager      *mailerTLS.ACMEManager
	acmeServer       *http.Server
	rateLimiter      *ratelimit.Limiter
	metricsServer    *metrics.Server
	metricsCollector *metrics.Collector
	historyCleaner   *history.Cleaner
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	// Setup logger
	logger := NewLogger(cfg.Logging, os.Stdout)

	// Open storage
	stores, err := OpenStores(cfg.Storage.Path, logger)
	if err != nil {
		return nil, err
	}

	// Create rate limiter if enabled
	var rateLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rlConfig := ratelimit.Config{}
		if cfg.RateLimit.Global != nil {
			rlConfig.Global = &ratelimit.Limit{
				SendsPerHour: cfg.RateLimit.Global.SendsPerHour,
				SendsPerDay:  cfg.RateLimit.Global.SendsPerDay,
			}
		}
		if cfg.RateLimit.PerClient != nil {
			rlConfig.PerClient = &ratelimit.Limit{
				SendsPerHour: cfg.RateLimit.PerClient.SendsPerHour,
				SendsPerDay:  cfg.RateLimit.PerClient.SendsPerDay,
			}
		}

		rateLimiter, err = ratelimit.NewLimiter(stores.DB, rlConfig)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("send rate limiting enabled")
	}

	// Create metrics
	var metricsServer *metrics.Server
	var metricsCollector *metrics.Collector
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		metricsCollector, err = metrics.NewCollector(stores.DB, m, stores.Library, cfg.Storage.Path, cfg.Metrics.FlushInterval)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}

		metricsServer = metrics.NewServer(
			m,
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	// Setup TLS configuration
	var tlsConfig *tls.Config
	var acmeManager *mailerTLS.ACMEManager

	if cfg.Server.TLS.ACME.Enabled {
		acmeManager = mailerTLS.NewACMEManager(
			cfg.Server.TLS.ACME.Email,
			cfg.Server.TLS.ACME.Domains,
			cfg.Server.TLS.ACME.CacheDir,
		)
		tlsConfig = acmeManager.TLSConfig()
		logger.Info("ACME (Let's Encrypt) enabled", "domains", cfg.Server.TLS.ACME.Domains)
	} else if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		tlsConfig, err = mailerTLS.LoadCertificate(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		logger.Info("TLS enabled with manual certificates")
	}

	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
	gate := proxy.NewGate(client, stores.History, logger.With("component", "proxy"), "proxy")

	apiServer := api.NewServer(api.Options{
		Gate:     gate,
		Library:  stores.Library,
		History:  stores.History,
		Settings: stores.Settings,
		Limiter:  rateLimiter,
		Config:   &cfg.Server,
		Version:  version,
		Logger:   logger.With("component", "api"),
	})

	historyCleaner := history.NewCleaner(stores.History,
		cfg.Storage.HistoryMaxAge, cfg.Storage.HistoryCleanupInterval,
		logger.With("component", "history"))

	return &App{
		config:           cfg,
		stores:           stores,
		apiServer:        apiServer,
		logger:           logger,
		tlsConfig:        tlsConfig,
		acmeManager:      acmeManager,
		rateLimiter:      rateLimiter,
		metricsServer:    metricsServer,
		metricsCollector: metricsCollector,
		historyCleaner:   historyCleaner,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting htmlmailer",
		"addr", a.config.Server.ListenAddr,
		"provider", a.config.Provider.BaseURL,
		"tls", a.tlsConfig != nil,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		var err error
		if a.tlsConfig != nil {
			err = a.apiServer.ListenAndServeTLS(a.tlsConfig)
		} else {
			err = a.apiServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	a.historyCleaner.Start(ctx)

	// Start metrics
	if a.metricsServer != nil {
		a.metricsCollector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Start ACME HTTP challenge server if ACME is enabled
	if a.acmeManager != nil {
		addr := a.config.Server.TLS.ACME.HTTPAddr
		a.acmeServer = &http.Server{
			Addr: addr,
			Handler: a.acmeManager.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Redirect all non-ACME requests to HTTPS
				target := "https://" + r.Host + r.URL.Path
				if r.URL.RawQuery != "" {
					target += "?" + r.URL.RawQuery
				}
				http.Redirect(w, r, target, http.StatusMovedPermanently)
			})),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	// Graceful shutdown
	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Shutdown ACME server if running
	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
		// Persists counters
		if err := a.metricsCollector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	a.historyCleaner.Stop()

	// Stop rate limiter (persists counters)
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	// Close storage
	if err := a.stores.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
