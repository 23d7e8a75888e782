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
	"github.com/securelogin/apiserver/config"
	"github.com/securelogin/apiserver/internal/audit"
	"github.com/securelogin/apiserver/internal/authz"
	"github.com/securelogin/apiserver/internal/db"
	"github.com/securelogin/apiserver/internal/handlers"
	"github.com/securelogin/apiserver/internal/lockout"
	"github.com/securelogin/apiserver/internal/services"
	"github.com/securelogin/apiserver/internal/session"
	"github.com/securelogin/apiserver/internal/store"
	"github.com/securelogin/apiserver/internal/totp"
)

const (
	auditChannel = "auth-events"

	// lockoutSweepInterval is how often stale lockout records are reclaimed.
	lockoutSweepInterval = time.Minute
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	db          *sql.DB
	auditStream *audit.Stream
	stopSweep   chan struct{}
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auditStream, err := newAuditStream(ctx, cfg.Audit)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	enrollmentRepo := store.NewEnrollmentRepository(dbConn)

	totpEngine := totp.NewEngine(cfg.TOTP.Issuer)
	tracker := lockout.New(cfg.Lockout.MaxAttempts, cfg.Lockout.Cooldown)
	stopSweep := make(chan struct{})
	go sweepLockouts(tracker, stopSweep)

	codec := session.NewCodec(cfg.JWT.Secret, cfg.JWT.TokenTTL)

	authService := services.NewAuthService(userRepo, enrollmentRepo, totpEngine, tracker, codec, auditStream)
	userService := services.NewUserService(userRepo)

	authHandler := handlers.NewAuthHandler(authService, userService)
	adminHandler := handlers.NewUserAdminHandler(userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		handlers.Authenticate(codec),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(handlers.Guard(authz.AdminArea), handlers.RequireVerified)
			handlers.UserAdminRouter(r, adminHandler)
		})
	})
	router.With(handlers.Guard(authz.ClientArea)).Get(authz.ClientHomePath, handlers.ClientDashboard)
	router.With(handlers.Guard(authz.AdminArea)).Get(authz.AdminHomePath, handlers.AdminDashboard)

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
		auditStream: auditStream,
		stopSweep:   stopSweep,
	}, nil
}

// sweepLockouts periodically reclaims lockout records that no longer
// influence any decision, until done is closed.
func sweepLockouts(tracker *lockout.Tracker, done <-chan struct{}) {
	ticker := time.NewTicker(lockoutSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			tracker.Cleanup(time.Now())
		}
	}
}

// newAuditStream selects the configured event backend. An empty backend
// disables publishing without disabling the callers.
func newAuditStream(ctx context.Context, cfg config.AuditConfig) (*audit.Stream, error) {
	switch cfg.Backend {
	case "":
		return audit.NewStream(nil, auditChannel), nil
	case "rabbitmq":
		backend, err := audit.NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return audit.NewStream(backend, auditChannel), nil
	case "pubsub":
		backend, err := audit.NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return audit.NewStream(backend, auditChannel), nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.stopSweep != nil {
		close(s.stopSweep)
		s.stopSweep = nil
	}
	if s.auditStream != nil {
		_ = s.auditStream.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
