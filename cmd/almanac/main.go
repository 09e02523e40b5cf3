package main

import (
	"context"
	"strings"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/config"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/handlers"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/ingest"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/learning"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/metrics"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/notifier"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/optimizer"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/schedules"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/solver"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/storage"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/workers"
	pkgconfig "github.com/jsimoes215/AI-Content-Automation-sub005/pkg/config"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/database"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/kafka"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/monitoring"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/redis"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/server"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("almanac")

	// Load environment variables
	pkgconfig.LoadEnv(logger)

	logger.Info("Starting Almanac (Scheduling Optimization Engine)")

	cfg := config.LoadConfig()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("almanac", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("almanac", version.Version, version.GitCommit)

	// Create custom metrics
	serviceMetrics := &metrics.Metrics{
		SchedulesCreated:      metricsCollector.NewCounter("schedules_created_total", "Schedules created", []string{"timezone"}),
		StateTransitions:      metricsCollector.NewCounter("schedule_state_transitions_total", "Schedule state transitions", []string{"to"}),
		ItemsReported:         metricsCollector.NewCounter("item_results_reported_total", "Item publish outcomes reported", []string{"outcome"}),
		OptimizationRuns:      metricsCollector.NewCounter("optimization_runs_total", "Optimization trials run", []string{"applied", "status"}),
		OptimizationDuration:  metricsCollector.NewHistogram("optimization_duration_seconds", "Optimization trial latency", []string{"applied"}, nil),
		ItemsUnschedulable:    metricsCollector.NewCounter("items_unschedulable_total", "Items no feasible slot was found for", []string{}),
		RecommendationQueries: metricsCollector.NewCounter("recommendation_queries_total", "Recommendation queries served", []string{"status"}),
		EventsIngested:        metricsCollector.NewCounter("performance_events_ingested_total", "Performance events folded into profiles", []string{"platform"}),
		ProfileVersions:       metricsCollector.NewGauge("timing_profile_sample_count", "Decayed sample count per platform profile", []string{"platform"}),
	}

	// Connect Postgres and apply the schema
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := storage.EnsureSchema(context.Background(), db); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}
	store := storage.NewPostgresStore(db, logger)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))

	// Timing profiles: seed the in-memory store from the newest persisted
	// version per platform, then keep learning from the event bus.
	registry := platforms.NewRegistry()
	profiles := timing.NewStore()
	if versions, err := store.LoadLatestProfiles(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to load timing profiles")
	} else {
		profiles.Seed(versions)
		logger.WithField("platforms", len(versions)).Info("Seeded timing profiles")
	}

	learner := learning.NewLearner(profiles, store, logger, learning.DefaultConfig()).WithMetrics(serviceMetrics)
	model := timing.NewModel(registry, timing.DefaultConfig())
	slv := solver.New(model, logger, solver.DefaultConfig())

	// Realtime hub
	hub := notifier.NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Redis fan-out so subscribers on any instance see all events
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))

		bridge := notifier.NewBridge(redisClient, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.WithError(err).Error("Event bridge stopped")
			}
		}()
	}
	go hub.Run()

	// Kafka producer for lifecycle events, consumer for performance feedback
	var producer kafka.ProducerInterface
	if cfg.KafkaEnabled {
		brokers := strings.Split(cfg.KafkaBrokers, ",")

		kafkaProducer, err := kafka.NewProducer(brokers, cfg.KafkaClient, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Kafka producer")
		}
		defer kafkaProducer.Close()
		producer = kafkaProducer
		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(kafkaProducer.GetClient()))
		healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
			"KAFKA_BROKERS": cfg.KafkaBrokers,
		}))
	}

	manager := schedules.NewManager(store, registry, hub, producer, logger, schedules.Config{
		DefaultDeadline: cfg.DefaultDeadline,
	})
	orchestrator := optimizer.NewOrchestrator(model, profiles, registry, slv, store, store, manager, logger)
	pool := workers.NewPool(cfg.OptimizeConcurrency, logger)

	if cfg.KafkaEnabled {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		consumer, err := kafka.NewConsumer(brokers, cfg.KafkaGroupID, cfg.KafkaClient, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Kafka consumer")
		}
		defer consumer.Close()

		// Optional ClickHouse archive for consumed feedback
		var archiver *ingest.Archiver
		if cfg.ClickHouseEnabled {
			chConfig := database.ClickHouseConfig{
				Addr:     strings.Split(cfg.ClickHouseAddr, ","),
				Database: cfg.ClickHouseDB,
				Username: cfg.ClickHouseUser,
				Password: cfg.ClickHousePass,
			}
			chConn, err := database.ConnectClickHouseNative(chConfig, logger)
			if err != nil {
				logger.WithError(err).Fatal("Failed to connect to ClickHouse")
			}
			if err := storage.EnsureArchiveSchema(ctx, chConn); err != nil {
				logger.WithError(err).Fatal("Failed to apply archive schema")
			}
			archiver = ingest.NewArchiver(chConn, logger, 0, 0)
			archiver.Start()
			defer archiver.Stop()
		}

		ingestor := ingest.NewIngestor(learner, registry, archiver, logger)
		ingestor.Register(consumer)

		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Kafka consumer error")
			}
		}()
	}

	// Fail schedules that miss their processing deadline
	watchdog := schedules.NewDeadlineWatchdog(store, manager, logger, cfg.WatchdogInterval)
	watchdog.Start()
	defer watchdog.Stop()

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "almanac", healthChecker, metricsCollector)

	almanacHandlers := handlers.NewAlmanacHandlers(manager, orchestrator, profiles, hub, pool, serviceMetrics, logger)
	almanacHandlers.RegisterRoutes(router)
	router.NoRoute(almanacHandlers.HandleNotFound)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("almanac", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
