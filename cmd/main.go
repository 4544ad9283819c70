/**
 * @description
 * This is the main entry point for the enrollment-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the Razorpay client, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/razorpay: Client for the Razorpay API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/yogatara/enrollment-service/internal/api"
	"github.com/yogatara/enrollment-service/internal/app"
	"github.com/yogatara/enrollment-service/internal/config"
	"github.com/yogatara/enrollment-service/internal/store"
	rmrabbit "github.com/yogatara/enrollment-service/pkg/rabbitmq"
	"github.com/yogatara/enrollment-service/pkg/razorpay"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.RazorpayKeyID) == "" || strings.TrimSpace(cfg.RazorpayKeySecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"razorpay credentials must be configured\" env=RAZORPAY_KEY_ID,RAZORPAY_KEY_SECRET")
	}
	if strings.TrimSpace(cfg.RazorpayWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"razorpay webhook secret must be configured\" env=RAZORPAY_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil || taxRate.IsNegative() {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid tax rate\" value=%q err=%v", cfg.TaxRate, err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting enrollment-service\" port=%s", cfg.ServerPort)

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

	// Initialize the RabbitMQ producer to publish lifecycle events.
	// This service only needs to publish, so we use a producer.
	var eventProducer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Razorpay API.
	razorpayClient := razorpay.NewClient(cfg.RazorpayAPIBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)

	// Connect to Redis when rate limiting is enabled. A missing or unreachable
	// Redis degrades to no rate limiting rather than blocking startup.
	var redisClient *redis.Client
	rateLimitingEnabled := cfg.EnrollmentRateLimitPerMinute > 0 || cfg.PaymentRateLimitPerMinute > 0
	if rateLimitingEnabled {
		if strings.TrimSpace(cfg.RedisURL) == "" {
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
	enrollmentService := app.NewService(
		repository,
		razorpayClient,
		eventProducer,
		cfg.RazorpayKeyID,
		cfg.RazorpayKeySecret,
		cfg.RazorpayWebhookSecret,
		taxRate,
		time.Duration(cfg.EnrollmentExpiryMinutes)*time.Minute,
		cfg.DefaultCurrency,
		cfg.ExpirySweepBatchSize,
	)
	if redisClient != nil {
		enrollmentService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.EnrollmentRateLimitPerMinute,
			cfg.PaymentRateLimitPerMinute,
		)
	}

	// Initialize the API handlers.
	enrollmentHandlers := api.NewEnrollmentHandlers(enrollmentService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.Routes(enrollmentHandlers, cfg.JWTSecret, cfg.InternalAPIKey))

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
