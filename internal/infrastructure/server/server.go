package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/sandbox-bridge/internal/api/http"
	"github.com/GriffinCanCode/sandbox-bridge/internal/api/middleware"
	"github.com/GriffinCanCode/sandbox-bridge/internal/api/ws"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandbox-bridge/internal/sandbox"
)

// shutdownTimeout bounds graceful HTTP shutdown
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	supervisor *bridge.Supervisor
	pool       *sandbox.Pool
	registry   *execution.Registry
	hub        *ws.Hub
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics

	stopForward context.CancelFunc
	unsubscribe func()
}

// NewServer builds every component from cfg
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return New(cfg, logger)
}

// New builds the server around an existing logger
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing Sandbox Bridge",
		zap.String("addr", cfg.Addr()),
		zap.Duration("watchdog_timeout", cfg.Sandbox.WatchdogTimeout.Std()),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
	)

	metrics := monitoring.NewMetrics()

	mode, err := execution.ParseDisplayMode(cfg.Sandbox.DisplayMode)
	if err != nil {
		return nil, err
	}
	registry := execution.NewRegistry().WithDisplayMode(mode)

	pool, err := sandbox.NewPool(sandbox.Config{MaxCallStack: cfg.Sandbox.MaxCallStack}, cfg.Sandbox.PoolSize, logger.Component("realm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create realm pool: %w", err)
	}

	hub := ws.NewHub(logger.Component("ws"), metrics)
	supervisor := bridge.New(bridge.Options{
		WatchdogTimeout: cfg.Sandbox.WatchdogTimeout.Std(),
		DialogQueue:     cfg.Sandbox.DialogQueue,
	}, pool, registry, hub, logger.Component("bridge"), metrics)

	events, unsubscribe := registry.Subscribe()
	forwardCtx, stopForward := context.WithCancel(context.Background())
	go hub.Forward(forwardCtx, events)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := apihttp.NewHandlers(supervisor, registry, metrics, logger.Component("http"))
	handlers.Register(router)

	router.GET("/stream", ws.NewHandler(hub, supervisor, logger.Component("ws")).HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:      router,
		supervisor:  supervisor,
		pool:        pool,
		registry:    registry,
		hub:         hub,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		stopForward: stopForward,
		unsubscribe: unsubscribe,
	}, nil
}

// Handler returns the root handler. Plain requests are gzip-compressed;
// WebSocket upgrades bypass the gzip writer so the connection can be hijacked.
func (s *Server) Handler() http.Handler {
	compressed := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// Run serves HTTP until Close
func (s *Server) Run() error {
	addr := s.config.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.stopForward()
	s.unsubscribe()

	if err := s.supervisor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bridge close: %w", err))
	}
	if err := s.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pool close: %w", err))
	}

	s.logger.Close()
	return errors.Join(errs...)
}
