package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/db"
	"github.com/foxzi/ingestdesk/internal/web/handlers"
	"github.com/foxzi/ingestdesk/internal/web/metrics"
	"github.com/foxzi/ingestdesk/internal/web/middleware"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/foxzi/ingestdesk/internal/web/static"
	"github.com/foxzi/ingestdesk/internal/web/views"
	"github.com/foxzi/ingestdesk/internal/web/worker"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	journal  *audit.Journal
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	handlers *handlers.Handlers
	metrics  *metrics.Metrics
	http     *http.Server
	probe    *metrics.Server
	worker   *worker.Worker
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// Initialize database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	journal, err := audit.Open(cfg.Journal.Path)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	s, err := newServer(cfg, logger, database, journal)
	if err != nil {
		journal.Close()
		database.Close()
		return nil, err
	}
	return s, nil
}

func newServer(cfg *config.Config, logger *slog.Logger, database *db.DB, journal *audit.Journal) (*Server, error) {
	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	var (
		oidcProvider *auth.OIDCProvider
		refresher    auth.Refresher
	)
	if cfg.Auth.OIDC.Enabled {
		oidcProvider, err = auth.NewOIDCProvider(context.Background(), &cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		refresher = oidcProvider
		logger.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	m := metrics.New()
	users := repository.NewUserRepository(database.DB)
	sessions := repository.NewSessionRepository(database.DB)

	tokens := auth.NewSessionTokens(refresher, sessions, cfg.Backend.ServiceToken, logger)
	client := backend.NewClient(cfg.Backend.BaseURL, tokens,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithObserver(m),
	)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		journal:  journal,
		users:    users,
		sessions: sessions,
		metrics:  m,
	}
	s.handlers = handlers.New(handlers.Deps{
		Config:   cfg,
		Backend:  client,
		Users:    users,
		Sessions: sessions,
		OIDC:     oidcProvider,
		Journal:  journal,
		Metrics:  m,
		Views:    viewEngine,
		Logger:   logger,
	})

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.Metrics.Enabled {
		s.probe = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
	}

	var pruner worker.JournalPruner
	if journal != nil {
		pruner = journal
	}
	s.worker = worker.New(sessions, pruner, logger, worker.Config{
		Interval:  time.Hour,
		Retention: cfg.Journal.Retention,
	})

	return s, nil
}

// Handler returns the routed console.
func (s *Server) Handler() http.Handler {
	h := s.handlers
	roles := s.cfg.Auth.Roles
	limiter := middleware.NewLoginLimiter(s.cfg.Auth.LoginLimit.PerMinute, s.cfg.Auth.LoginLimit.Burst)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(s.metrics.HTTPMiddleware)
	r.Use(middleware.MethodOverride)

	r.Get("/health", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))

	// Auth routes (public)
	r.Get("/auth/login", h.LoginPage)
	r.With(limiter.Middleware).Post("/auth/login", h.Login)
	r.Get("/auth/logout", h.Logout)
	r.Get("/auth/oidc/login", h.OIDCLogin)
	r.Get("/auth/callback", h.OIDCCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.sessions, s.logger))

		r.Get("/", h.Index)
		r.Get("/jobs", h.JobsPage)
		r.Get("/jobs/{id}/issues", h.JobIssuesPage)
		r.Get("/issues", h.IssuesPage)
		r.Get("/contacts", h.ContactsPage)
		r.Get("/settings/audit", h.AuditLog)

		r.Route("/views/{view}", func(r chi.Router) {
			r.Get("/table", h.TableFragment)
			r.Get("/export.csv", h.ExportCSV)
			r.Post("/{action}", h.TableAction)
			r.Delete("/", h.CloseView)
		})

		r.With(middleware.RequireGroup(roles.UploaderGroup, s.logger)).Post("/jobs/upload", h.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireGroup(roles.EditorGroup, s.logger))
			r.Post("/jobs/{id}/cancel", h.CancelJob)
			r.Post("/jobs/reprocess-all", h.ReprocessAll)
			r.Get("/issues/{id}/resolve", h.ResolvePanel)
			r.Post("/issues/{id}/resolve", h.ResolveUpdate)
			r.Delete("/issues/{id}/resolve", h.CloseResolve)
		})
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.worker.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr, "tls", s.cfg.Server.TLS.Enabled)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if s.probe != nil {
		g.Go(func() error {
			s.logger.Info("starting metrics server", "addr", s.cfg.Metrics.ListenAddr)
			return s.probe.ListenAndServe()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		if s.probe != nil {
			if err := s.probe.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("metrics shutdown error", "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	s.worker.Stop()
	s.Close()
	return err
}

// Close unmounts every view and releases the stores.
func (s *Server) Close() {
	s.handlers.Close()
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close journal", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("failed to close database", "error", err)
	}
}
