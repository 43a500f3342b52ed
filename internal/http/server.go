package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modforge/assembler/internal/categorizer"
	"github.com/modforge/assembler/internal/modstore"
	"github.com/modforge/assembler/internal/orchestrator"
	"github.com/modforge/assembler/internal/quota"
)

// Config holds the subset of the service configuration the HTTP layer
// needs directly: listen address, auth, and the per-flow request
// budgets of §5 that bound how long a build-board/crash-doctor request
// is allowed to run before its context is cancelled.
type Config struct {
	Host                  string
	Port                  int
	JWTSecret             string
	JWTAudience           string
	RequestBudgetAssembly time.Duration
	RequestBudgetCrash    time.Duration
}

// Server wires the §6 wire API onto the already-constructed pipeline
// components: the Assembler and CrashOrchestrator run the two
// request flows, the Categorizer backs auto-sort directly (its request
// shape is too minimal to go through the full Assembler), and Store
// backs feedback recording and tag lookup.
type Server struct {
	echo        *echo.Echo
	logger      *zap.Logger
	config      *Config
	assembler   *orchestrator.Assembler
	crashOrch   *orchestrator.CrashOrchestrator
	categorizer *categorizer.Categorizer
	store       *modstore.Store
	quota       *quota.Gate
}

// NewServer constructs a Server with every route registered.
func NewServer(logger *zap.Logger, cfg *Config, assembler *orchestrator.Assembler, crashOrch *orchestrator.CrashOrchestrator, cat *categorizer.Categorizer, store *modstore.Store, gate *quota.Gate) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if crashOrch == nil {
		return nil, fmt.Errorf("crash orchestrator is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("categorizer is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("quota gate is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:        e,
		logger:      logger,
		config:      cfg,
		assembler:   assembler,
		crashOrch:   crashOrch,
		categorizer: cat,
		store:       store,
		quota:       gate,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// registerRoutes mounts every endpoint of §6. get-mod-tags is the only
// fully public (unauthenticated) endpoint; every other route — the
// three AI endpoints and feedback recording, which stamps the caller's
// user ID onto the stored record — requires a bearer token.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/api/get-mod-tags", s.handleGetModTags)

	auth := jwtAuth(s.config.JWTSecret, s.config.JWTAudience)

	ai := s.echo.Group("/api/ai", auth)
	ai.POST("/build-board", s.handleBuildBoard)
	ai.POST("/auto-sort", s.handleAutoSort)
	ai.POST("/crash-doctor/analyze", s.handleCrashDoctor)

	s.echo.POST("/api/feedback", s.handleFeedback, auth)
	s.echo.POST("/api/feedback/categorization", s.handleFeedbackCategorization, auth)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
