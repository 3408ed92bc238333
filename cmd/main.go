/**
 * @description
 * This is the main entry point for the payout-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, message brokers, repositories, the core application service, the
 * settlement worker, the maintenance scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Optional distributed rate limiter backend.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/api"
	"github.com/mypay/payout-service/internal/app"
	"github.com/mypay/payout-service/internal/config"
	"github.com/mypay/payout-service/internal/store"
	"github.com/mypay/payout-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}

	reviewThreshold, err := decimal.NewFromString(cfg.ReviewThreshold)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid review threshold\" value=%q err=%v", cfg.ReviewThreshold, err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payout-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to mirror processed outbox events.
	// The mirror is best-effort; a missing broker must not block payouts.
	var producer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; event mirror disabled\" env=RABBITMQ_URL")
	} else {
		rabbitProducer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if prodErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; event mirror disabled\" err=%v", prodErr)
		} else {
			defer rabbitProducer.Close()
			producer = rabbitProducer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Optional Redis-backed rate limiting for payout creation.
	var redisClient *redis.Client
	if cfg.CreateRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	payoutService := app.NewService(repository, reviewThreshold)
	if redisClient != nil {
		payoutService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.CreateRateLimitPerMinute,
		)
	}

	// Initialize the webhook sender and the settlement worker.
	webhookSender := app.NewWebhookSender(
		repository,
		time.Duration(cfg.WebhookTimeoutSeconds)*time.Second,
		cfg.WebhookMaxAttempts,
		time.Duration(cfg.WebhookRetryDelaySeconds)*time.Second,
	)
	worker := app.NewWorker(repository, payoutService, webhookSender, producer, cfg.EventExchange)
	worker.Configure(
		time.Duration(cfg.WorkerPollIntervalSeconds)*time.Second,
		cfg.WorkerBatchSize,
		time.Duration(cfg.SettlementRetryDelaySeconds)*time.Second,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go worker.Run(workerCtx)

	// Start the maintenance scheduler for idempotency cleanup and stale
	// PROCESSING requeue.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(repository, logger, time.Duration(cfg.StaleProcessingAfterMinutes)*time.Minute)
	scheduler := app.NewScheduler(jobs, logger, app.SchedulerConfig{
		IdempotencyCleanupSchedule: cfg.IdempotencyCleanupSchedule,
		StaleRequeueSchedule:       cfg.StaleRequeueSchedule,
	})
	scheduler.Start()

	// Initialize the API handlers and router.
	handlers := api.NewPayoutHandlers(payoutService, cfg.IPNSecret)
	guard := api.NewIdempotencyGuard(repository, time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	router := api.NewRouter(handlers, repository, guard, cfg.AllowedOrigins())

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	stopWorker()
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
