package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mto-maintenance/apiserver/config"
	"github.com/mto-maintenance/apiserver/internal/db"
	"github.com/mto-maintenance/apiserver/internal/handlers"
	"github.com/mto-maintenance/apiserver/internal/logging"
	"github.com/mto-maintenance/apiserver/internal/metrics"
	"github.com/mto-maintenance/apiserver/internal/mq"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/mto-maintenance/apiserver/internal/store"
	"github.com/mto-maintenance/apiserver/internal/store/memstore"
	"github.com/mto-maintenance/apiserver/internal/store/mongostore"
	"go.uber.org/zap"
)

var (
	_ services.UserRepository    = (*store.UserRepository)(nil)
	_ services.SessionRepository = (*store.SessionRepository)(nil)
	_ services.UserRepository    = (*mongostore.UserRepository)(nil)
	_ services.SessionRepository = (*mongostore.SessionRepository)(nil)
	_ services.UserRepository    = (*memstore.UserRepository)(nil)
	_ services.SessionRepository = (*memstore.SessionRepository)(nil)
	_ services.Publisher         = (*mq.MQ)(nil)
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	closers    []func(context.Context) error
}

type repositories struct {
	users    services.UserRepository
	sessions services.SessionRepository
	close    func(context.Context) error
}

// New connects the configured store and broker and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv := &Server{logger: logger}
	srv.closers = append(srv.closers, repos.close)

	broker, err := mq.FromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = srv.close(ctx)
		return nil, err
	}
	var publisher services.Publisher
	if broker != nil {
		publisher = broker
		srv.closers = append(srv.closers, func(context.Context) error { return broker.Close() })
	}
	events := services.NewEvents(publisher, cfg.MQ.Channel, logger.Named("events"))

	userService := services.NewUserService(repos.users, cfg.Auth.BcryptCost, events)
	sessionService := services.NewSessionService(repos.users, repos.sessions, cfg.Session.TTL, logger.Named("sessions"), events)

	srv.router = NewRouter(cfg, logger, userService, sessionService)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreDriver),
		zap.String("mq", cfg.MQ.Driver),
		zap.Int("port", port),
	)
	return srv, nil
}

// NewRouter mounts every route with the shared middleware stack.
func NewRouter(cfg config.Config, logger *zap.Logger, users *services.UserService, sessions *services.SessionService) *chi.Mux {
	errs := handlers.Errors{Logger: logger, ExposeDetail: !cfg.IsProduction()}
	auth := handlers.NewAuthenticator(sessions, cfg.Session.HeaderName, cfg.Session.CookieName, errs)
	limiter := handlers.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		metrics.Instrument,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", cfg.Session.HeaderName},
			AllowCredentials: true,
			MaxAge:           600,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		h := handlers.NewAuthHandler(users, sessions, auth, cfg.Session.CookieName, cfg.IsProduction(), errs)
		handlers.AuthRouter(r, h, limiter.Middleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, handlers.NewUserHandler(users, sessions, errs), auth.Authenticate)
	})
	return router
}

func openRepositories(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres, "":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, fmt.Errorf("open postgres: %w", err)
		}
		return repositories{
			users:    store.NewUserRepository(conn),
			sessions: store.NewSessionRepository(conn),
			close:    func(context.Context) error { return conn.Close() },
		}, nil

	case config.StoreDriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return repositories{}, fmt.Errorf("connect mongo: %w", err)
		}
		return repositories{
			users:    client.Users(),
			sessions: client.Sessions(),
			close:    client.Close,
		}, nil

	case config.StoreDriverMemory:
		st := memstore.New()
		return repositories{
			users:    st.Users(),
			sessions: st.Sessions(),
			close:    func(context.Context) error { return nil },
		}, nil

	default:
		return repositories{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.close(ctx))
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
