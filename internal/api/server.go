package api

import (
	"context"
	"net/http"
	"time"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/api/handlers"
	"example.com/distribution/services/stockout/internal/api/middleware"
	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps bundles everything the HTTP server serves.
type Deps struct {
	Orders   *services.OrderService
	Sessions *services.SessionService
	Stock    *services.StockService
	Users    middleware.UserResolver
	Cache    *cache.RedisCache
	Metrics  *metrics.Metrics
	Tracer   tracing.Tracer
}

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Deps) *Server {
	server := &Server{
		config: cfg,
		deps:   deps,
	}

	router := server.setupRouter()
	server.router = router

	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.NewRelicMiddleware(s.deps.Tracer.Application()))

	metricsHandler := handlers.NewMetricsHandler(s.deps.Metrics, s.deps.Tracer)
	metricsHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/details", metricsHandler.HandleGetHealthCheck)

	authed := router.Group("/")
	authed.Use(middleware.TokenAuth(s.deps.Users, s.deps.Cache))

	orderHandler := handlers.NewOrderHandler(s.deps.Orders, s.deps.Tracer)
	orderHandler.RegisterRoutes(authed)

	sessionHandler := handlers.NewSessionHandler(s.deps.Sessions, s.deps.Stock, s.deps.Tracer)
	sessionHandler.RegisterRoutes(authed)

	movementHandler := handlers.NewMovementHandler(s.deps.Stock, s.deps.Tracer)
	movementHandler.RegisterRoutes(authed)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
