package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/database"
	"example.com/distribution/services/stockout/internal/messaging"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/notify"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/search"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// How many pending orders one reconciliation pass looks at.
const reconcileBatchSize = 100

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to dispatch order notifications and reconcile order fulfillment`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

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
	defer tracer.Close()

	// Initialize Elasticsearch client
	var movementIndex services.MovementIndex
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	} else {
		movementIndex = elasticClient
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories and services
	movementRepo := repositories.NewStockMovementRepository(db, readOnlyDB)
	subscriptionRepo := repositories.NewPushSubscriptionRepository(db, readOnlyDB)

	// The worker publishes completion events found by reconciliation.
	busClient, err := messaging.NewServiceBusClient(cfg.Azure, "sender")
	if err != nil {
		return err
	}
	defer busClient.Close()

	sessionService := services.NewSessionService(nil, cfg.Session, metricsCollector)
	stockService := services.NewStockService(db, movementRepo, sessionService,
		nil, movementIndex, busClient, redisCache, tracer, metricsCollector)

	dispatcher := notify.NewDispatcher(subscriptionRepo, nil)

	// Receive order events from the queue and fan them out
	receiver, err := messaging.NewServiceBusClient(cfg.Azure, "receiver")
	if err != nil {
		return err
	}
	defer receiver.Close()

	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Service Bus processor")
		return receiver.ProcessMessages(ctx, dispatcher.HandleMessage)
	})

	// Fallback reconciliation catches submissions that crashed between the
	// movement commit and order completion
	g.Go(func() error {
		log.Info().Msg("Starting fulfillment reconciliation cron job as fallback mechanism")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				log.Info().Msg("Running fallback fulfillment reconciliation")
				if err := stockService.ReconcileOrders(ctx, reconcileBatchSize); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile order fulfillment")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
