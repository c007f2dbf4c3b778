package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/api"
	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/database"
	"example.com/distribution/services/stockout/internal/messaging"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/search"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/storage"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for orders, scan sessions and stock movements`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache, _ = cache.NewRedisCache(config.RedisConfig{Enabled: false})
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	var movementIndex services.MovementIndex
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	} else {
		movementIndex = elasticClient
	}

	// Initialize the proof image store
	imageStore, err := storage.NewS3ImageStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// Initialize the Service Bus publisher
	busClient, err := messaging.NewServiceBusClient(cfg.Azure, "sender")
	if err != nil {
		return err
	}
	defer busClient.Close()

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories and services
	userRepo := repositories.NewUserRepository(db, readOnlyDB)
	orderRepo := repositories.NewOrderRepository(db, readOnlyDB)
	movementRepo := repositories.NewStockMovementRepository(db, readOnlyDB)

	orderService := services.NewOrderService(orderRepo, redisCache, tracer, metricsCollector)
	sessionService := services.NewSessionService(orderService, cfg.Session, metricsCollector)
	stockService := services.NewStockService(db, movementRepo, sessionService,
		imageStore, movementIndex, busClient, redisCache, tracer, metricsCollector)

	// Evict idle scan sessions in the background
	go sessionService.RunJanitor(ctx)

	// Initialize and start the server
	server := api.NewServer(cfg, api.Deps{
		Orders:   orderService,
		Sessions: sessionService,
		Stock:    stockService,
		Users:    userRepo,
		Cache:    redisCache,
		Metrics:  metricsCollector,
		Tracer:   tracer,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
