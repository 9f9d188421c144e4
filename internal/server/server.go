package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microblog-hq/microblog/config"
	"github.com/microblog-hq/microblog/internal/db"
	"github.com/microblog-hq/microblog/internal/handlers"
	"github.com/microblog-hq/microblog/internal/logging"
	"github.com/microblog-hq/microblog/internal/notify"
	"github.com/microblog-hq/microblog/internal/services"
	"github.com/microblog-hq/microblog/internal/session"
	"github.com/microblog-hq/microblog/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	db          *sql.DB
	closeNotify func() error
	logger      *zap.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Auth.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	sessions, err := session.NewCookieStore(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, cfg.Auth.CookieSecure)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dispatcher, closeNotify, err := notify.New(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	registrationRepo := store.NewRegistrationRepository(dbConn)
	authorRepo := store.NewAuthorRepository(dbConn)

	accountService := services.NewAccountService(registrationRepo, dispatcher, logger, cfg.Notify.Timeout)
	authService := services.NewAuthService(authorRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	authHandler := handlers.NewAuthHandler(accountService, authService, sessions, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.Middleware(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		router:      router,
		db:          dbConn,
		closeNotify: closeNotify,
		logger:      logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then releases the dispatcher and the
// database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.closeNotify != nil {
		if cerr := s.closeNotify(); cerr != nil {
			s.logger.Warn("failed to close notification dispatcher", zap.Error(cerr))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
