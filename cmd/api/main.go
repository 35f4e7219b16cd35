// Package main is the entry point for the car rental API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/car-rental/backend/api"
	"github.com/pkordes/car-rental/backend/internal/config"
	"github.com/pkordes/car-rental/backend/internal/events"
	"github.com/pkordes/car-rental/backend/internal/handler"
	"github.com/pkordes/car-rental/backend/internal/lock"
	"github.com/pkordes/car-rental/backend/internal/middleware"
	"github.com/pkordes/car-rental/backend/internal/payment"
	"github.com/pkordes/car-rental/backend/internal/repo"
	"github.com/pkordes/car-rental/backend/internal/service"
	"github.com/pkordes/car-rental/backend/migrations"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if cfg.MigrateOnStart {
		sqlDB := stdlib.OpenDBFromPool(pool)
		applied, err := migrations.Up(ctx, sqlDB)
		_ = sqlDB.Close()
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "count", applied)
	}

	// --- Collaborators ----------------------------------------------------
	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	var gateway payment.Gateway
	if cfg.PaymentServiceURL != "" {
		gateway = payment.NewClient(cfg.PaymentServiceURL, cfg.UpstreamTimeout)
		slog.Info("using remote payment service", "url", cfg.PaymentServiceURL)
	} else {
		gateway = payment.NewSimulator(payment.RandomDecider{FailureRate: cfg.PaymentFailureRate})
		slog.Warn("PAYMENT_SERVICE_URL not set; using in-process payment simulator",
			"failure_rate", cfg.PaymentFailureRate)
	}

	// --- Services ---------------------------------------------------------
	carRepo := repo.NewCarRepo(pool)
	rentalRepo := repo.NewRentalRepo(pool)

	compensator := service.NewCompensator(rentalRepo, carRepo, gateway,
		repo.NewCompensationRepo(pool), publisher, logger, cfg.UpstreamTimeout)
	reservations := service.NewReservationService(service.ReservationDeps{
		Cars:        carRepo,
		Rentals:     rentalRepo,
		Payments:    gateway,
		Locker:      locker,
		Compensator: compensator,
		Events:      publisher,
		Log:         logger,
	}, service.ReservationOptions{
		UpstreamTimeout: cfg.UpstreamTimeout,
		PaymentRetries:  cfg.PaymentRetries,
		LockWait:        cfg.LockWait,
	})
	rentals := service.NewRentalService(rentalRepo)
	cars := service.NewCarService(carRepo)
	occupancy := service.NewOccupancyService(carRepo, rentalRepo, cfg.UpstreamTimeout, time.Now)

	scheduler, err := service.NewCompensationScheduler(compensator, cfg.CompensationSchedule, logger)
	if err != nil {
		slog.Error("invalid compensation schedule", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order:
	// RequestID → RealIP → Logger → Recoverer → CORS → MaxBodySize.
	// RequestID generates a unique trace ID per request.
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	srv := handler.NewServer(reservations, rentals, cars, occupancy, api.OpenAPI, logger)
	srv.Routes(r, middleware.NewIdempotency(repo.NewIdempotencyRepo(pool), logger))

	// --- HTTP Server ------------------------------------------------------
	// The write timeout leaves room for lock wait, payment retries and commit.
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	scheduler.Stop(shutdownCtx)
	slog.Info("server stopped")
}

// newLocker returns the Redis lock when REDIS_URL is set and an in-process
// one otherwise. The returned func releases the Redis client.
func newLocker(ctx context.Context, cfg config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set; using in-process booking lock (single replica only)")
		return lock.NewKeyedMutex(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("redis booking lock enabled", "ttl", cfg.LockTTL)
	return lock.NewRedisLocker(client, "", cfg.LockTTL, log), func() { _ = client.Close() }, nil
}

// newPublisher connects to RabbitMQ when RABBITMQ_URL is set. A broker that
// is down at boot degrades to logging events rather than refusing to start.
func newPublisher(cfg config.Config, log *slog.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		log.Warn("RABBITMQ_URL not set; rental events will only be logged")
		return events.NewNopPublisher(log)
	}
	pub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
	if err != nil {
		log.Error("failed to connect to rabbitmq; rental events will only be logged", "error", err)
		return events.NewNopPublisher(log)
	}
	log.Info("rabbitmq publisher connected", "exchange", cfg.EventsExchange)
	return pub
}
