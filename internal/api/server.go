package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/foxzi/htmlmailer/internal/config"
	"github.com/foxzi/htmlmailer/internal/history"
	"github.com/foxzi/htmlmailer/internal/ipfilter"
	"github.com/foxzi/htmlmailer/internal/metrics"
	"github.com/foxzi/htmlmailer/internal/proxy"
	"github.com/foxzi/htmlmailer/internal/ratelimit"
	"github.com/foxzi/htmlmailer/internal/settings"
	"github.com/foxzi/htmlmailer/internal/template"
)

// Options holds the server dependencies. Limiter may be nil.
type Options struct {
	Gate     *proxy.Gate
	Library  *template.Library
	History  *history.Store
	Settings *settings.Store
	Limiter  *ratelimit.Limiter
	Config   *config.ServerConfig
	Version  string
	Logger   *slog.Logger
}

// Server is the HTTP proxy and operator API
type Server struct {
	router         *chi.Mux
	httpServer     *http.Server
	gate           *proxy.Gate
	library        *template.Library
	history        *history.Store
	settings       *settings.Store
	limiter        *ratelimit.Limiter
	ipFilter       *ipfilter.Filter
	trustedProxies *ipfilter.Filter
	config         *config.ServerConfig
	version        string
	logger         *slog.Logger
	startTime      time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		gate:           opts.Gate,
		library:        opts.Library,
		history:        opts.History,
		settings:       opts.Settings,
		limiter:        opts.Limiter,
		ipFilter:       ipfilter.New(opts.Config.AllowedIPs, opts.Logger),
		trustedProxies: ipfilter.New(opts.Config.TrustedProxies, opts.Logger),
		config:         opts.Config,
		version:        opts.Version,
		logger:         opts.Logger,
		startTime:      time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(s.realIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
		}).Handler)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(securityHeaders)
			r.Use(s.bodyLimit)
			r.Use(s.sendLimitMiddleware)
			r.Post("/send-email", s.handleSendEmail)
		})

		r.With(s.bodyLimit).Post("/validate-html", s.handleValidateHTML)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(s.ipFilter.Middleware)
			r.Use(s.authMiddleware)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleUploadTemplates)
				r.Delete("/", s.handleClearTemplates)
				r.Get("/{id}", s.handleGetTemplate)
				r.Get("/{id}/preview", s.handlePreviewTemplate)
				r.Delete("/{id}", s.handleDeleteTemplate)
			})

			r.Route("/settings/sender", func(r chi.Router) {
				r.Get("/", s.handleGetSender)
				r.With(s.bodyLimit).Put("/", s.handleSaveSender)
				r.Delete("/", s.handleClearSender)
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", s.handleListHistory)
				r.Delete("/", s.handleClearHistory)
			})
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = s.newHTTPServer()

	s.logger.Info("starting HTTP server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server with the given TLS configuration
func (s *Server) ListenAndServeTLS(tlsConfig *tls.Config) error {
	s.httpServer = s.newHTTPServer()
	s.httpServer.TLSConfig = tlsConfig

	s.logger.Info("starting HTTPS server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
