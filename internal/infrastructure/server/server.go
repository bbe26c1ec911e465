package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/bashautom/internal/api/http"
	"github.com/GriffinCanCode/bashautom/internal/api/middleware"
	"github.com/GriffinCanCode/bashautom/internal/api/ws"
	"github.com/GriffinCanCode/bashautom/internal/history"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/config"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/bashautom/internal/registry"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	registry *registry.Registry
	history  *history.Store
	profiles *config.ProfileStore
	router   *gin.Engine
	http     *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing bashautom server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("shell", cfg.Shell.Path),
		zap.Int("max_sessions", cfg.Shell.MaxSessions),
	)

	metrics := monitoring.NewMetrics()
	hist := history.NewStore(cfg.History.Size)

	profiles, err := config.NewProfileStore(cfg.Profiles.File, logger.Component("profiles"))
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	breakerLog := logger.Component("breaker")
	reg := registry.New(
		registry.WithLogger(logger.Component("registry")),
		registry.WithRecorder(metrics),
		registry.WithMaxSessions(cfg.Shell.MaxSessions),
		registry.WithBreaker(resilience.Settings{
			Threshold: uint32(cfg.Breaker.Threshold),
			Cooldown:  cfg.Breaker.Cooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				breakerLog.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		registry.WithSessionOptions(
			shell.WithShell(cfg.Shell.Path, cfg.Shell.Args...),
			shell.WithDir(cfg.Shell.Dir),
			shell.WithGracePeriod(cfg.Shell.GracePeriod),
			shell.WithCloseTimeout(cfg.Shell.CloseTimeout),
			shell.WithDefaultTimeout(cfg.Shell.DefaultTimeout),
			shell.WithResultHook(hist.Hook()),
			shell.WithResultHook(commandRecorder(metrics)),
		),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.AllowedOrigins
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := httpapi.NewHandlers(reg, hist, profiles, metrics, logger.Component("api"))
	handlers.Register(router)

	wsHandler := ws.NewHandler(reg, metrics, logger.Component("ws"), originChecker(cfg.CORS.AllowedOrigins))
	router.GET("/api/sessions/:name/stream", wsHandler.HandleConnection)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		registry: reg,
		history:  hist,
		profiles: profiles,
		router:   router,
		http: &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: router,
		},
	}

	profiles.OnChange(func([]config.Profile) {
		s.seed(context.Background())
	})

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts background work and serves ln until ctx is done, then shuts
// down gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.metrics.Run(ctx)

	s.seed(ctx)
	if s.config.Profiles.Watch {
		if err := s.profiles.Watch(ctx); err != nil {
			s.logger.Warn("Profile watching disabled", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer stop()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, closes every session and flushes the
// logger. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		var errs []error
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := s.registry.CloseAll(); err != nil {
			errs = append(errs, fmt.Errorf("closing sessions: %w", err))
		}
		s.logger.Info("Server stopped", zap.Int("sessions_left", s.registry.Len()))
		_ = s.logger.Sync()

		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}

// seed creates sessions for autostart profiles that are not running yet.
func (s *Server) seed(ctx context.Context) {
	autostart := s.profiles.Autostart()
	if len(autostart) == 0 {
		return
	}
	presets := make([]registry.Preset, 0, len(autostart))
	for _, p := range autostart {
		presets = append(presets, registry.Preset{Name: p.Name, Options: httpapi.SessionOptions(p)})
	}
	if _, err := s.registry.Seed(ctx, presets); err != nil {
		s.logger.Warn("Failed to start some autostart sessions", zap.Error(err))
	}
}

func commandRecorder(metrics *monitoring.Metrics) shell.ResultHook {
	return func(_ string, res *shell.CommandResult) {
		metrics.RecordCommand(monitoring.CommandOutcome(res.ExitCode, res.TimedOut, res.SessionClosed), res.Duration)
	}
}

// originChecker accepts requests without an Origin header, from a listed
// origin, or from anywhere when the list is empty or holds "*".
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
