package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ecommerce-pricing/internal/auth"
	"github.com/utafrali/ecommerce-pricing/internal/catalog"
	"github.com/utafrali/ecommerce-pricing/internal/config"
	"github.com/utafrali/ecommerce-pricing/internal/event"
	handler "github.com/utafrali/ecommerce-pricing/internal/handler/http"
	"github.com/utafrali/ecommerce-pricing/internal/pricing"
	"github.com/utafrali/ecommerce-pricing/internal/repository/postgres"
	redisrepo "github.com/utafrali/ecommerce-pricing/internal/repository/redis"
	"github.com/utafrali/ecommerce-pricing/internal/service"
	"github.com/utafrali/ecommerce-pricing/migrations"
	"github.com/utafrali/ecommerce-pricing/pkg/database"
	"github.com/utafrali/ecommerce-pricing/pkg/health"
	"github.com/utafrali/ecommerce-pricing/pkg/httpclient"
	pkgkafka "github.com/utafrali/ecommerce-pricing/pkg/kafka"
	"github.com/utafrali/ecommerce-pricing/pkg/middleware"
	"github.com/utafrali/ecommerce-pricing/pkg/tracing"
)

// Processed event ids are remembered for a day.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the pricing service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	consumers  []*pkgkafka.Consumer
	tracer     tracing.ShutdownFunc
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := database.RegisterPoolMetrics(reg, pool, config.ServiceName); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Initialize Kafka producer.
	kafkaMetrics := pkgkafka.NewMetrics(reg)
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger, kafkaMetrics)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	campaignRepo := postgres.NewCampaignRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	ruleCache := redisrepo.NewRuleCache(rdb, campaignRepo, cfg.RuleCacheTTL, logger)
	eventProducer := event.NewProducer(producer, logger)
	metrics := service.NewMetrics(reg)

	catalogHTTP := httpclient.DefaultConfig()
	catalogHTTP.Timeout = cfg.CatalogTimeout()
	catalogClient := catalog.NewClient(
		httpclient.NewBreakerClient(
			httpclient.New(catalogHTTP),
			httpclient.DefaultBreakerConfig("catalog"),
			httpclient.NewBreakerMetrics(reg),
			logger,
		),
		cfg.CatalogURL,
		logger,
	)

	pricingService := service.NewPricingService(
		ruleCache,
		couponRepo,
		pricing.NewEngine(logger),
		catalogClient,
		eventProducer,
		metrics,
		service.PricingOptions{DefaultDeliveryFee: cfg.DeliveryFee(), Currency: cfg.Currency},
		logger,
	)
	campaignService := service.NewCampaignService(campaignRepo, ruleCache, eventProducer, metrics, logger)
	couponService := service.NewCouponService(couponRepo, eventProducer, logger)

	// Kafka consumers drop the shared rule snapshot whenever any replica changes
	// a rule. One invalidation per event is enough, so replicas share a group.
	var (
		dlq       *pkgkafka.DLQProducer
		consumers []*pkgkafka.Consumer
	)
	if cfg.KafkaConsumerEnabled {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		idempotency := pkgkafka.NewRedisIdempotencyStore(rdb, idempotencyTTL)
		eventConsumer := event.NewConsumer(ruleCache, logger)

		topics := []string{
			event.TopicCampaignCreated,
			event.TopicCampaignUpdated,
		}
		for _, topic := range topics {
			consumerCfg := pkgkafka.ConsumerConfig{
				Brokers:     cfg.KafkaBrokers,
				GroupID:     cfg.KafkaGroupID,
				Topic:       topic,
				MinBytes:    1,
				MaxBytes:    10e6, // 10 MB
				Idempotency: idempotency,
				DLQ:         dlq,
				Metrics:     kafkaMetrics,
			}
			consumers = append(consumers, pkgkafka.NewConsumer(consumerCfg, eventConsumer.HandleCampaignChanged, logger))
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(topics)),
		)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	// HTTP router.
	router := handler.NewRouter(handler.RouterDeps{
		ServiceName: config.ServiceName,
		Pricing:     pricingService,
		Campaigns:   campaignService,
		Coupons:     couponService,
		Health:      healthHandler,
		Tokens:      auth.NewJWTValidator(cfg.JWTSecret),
		Registry:    reg,
		Gatherer:    reg,
		Limiter:     middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		Origins:     cfg.CORSOrigins,
		Pprof:       cfg.PprofAllowedCIDRs,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		rdb:        rdb,
		producer:   producer,
		dlq:        dlq,
		consumers:  consumers,
		tracer:     shutdownTracer,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Start Kafka consumers in background goroutines.
	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed", slog.String("error", runErr.Error()))
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Close Kafka consumers.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Close PostgreSQL pool.
	a.pool.Close()

	if err := a.tracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
