package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fashion-store/internal/auth"
	"github.com/vasiliy-maslov/fashion-store/internal/cart"
	"github.com/vasiliy-maslov/fashion-store/internal/catalog"
	"github.com/vasiliy-maslov/fashion-store/internal/config"
	"github.com/vasiliy-maslov/fashion-store/internal/db"
	"github.com/vasiliy-maslov/fashion-store/internal/events"
	"github.com/vasiliy-maslov/fashion-store/internal/idempotency"
	"github.com/vasiliy-maslov/fashion-store/internal/metrics"
	"github.com/vasiliy-maslov/fashion-store/internal/order"
	"github.com/vasiliy-maslov/fashion-store/internal/payment"
	"github.com/vasiliy-maslov/fashion-store/internal/shipping"
	"github.com/vasiliy-maslov/fashion-store/internal/transport"
)

const serviceName = "order-service"

func main() {
	log.Logger = log.With().Str("service", serviceName).Logger()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("Order service starting...")
	log.Debug().Interface("config_loaded", cfg).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := db.ApplyMigrations(pg.Pool, cfg.Postgres.MigrationsPath, cfg.Postgres.SSLMode); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	sqlxDB := pg.SQLX()
	defer sqlxDB.Close()

	keys, closeKeys := newIdempotencyStore(ctx, cfg.Redis)
	defer closeKeys()

	publisher := newPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	rates := shipping.DefaultRates()
	if cfg.Shipping.RatesFile != "" {
		rates, err = shipping.LoadRates(cfg.Shipping.RatesFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Shipping.RatesFile).Msg("Failed to load shipping rates")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(registry, "order_service")
	orderMetrics := metrics.NewOrderMetrics(registry, "order_service")

	gateway := payment.NewProcessor(
		payment.StaticAuthorizer{Approve: cfg.Payment.CardMode == "approve"},
		payment.WithMomoURL(cfg.Payment.MomoURL),
		payment.WithZaloPayURL(cfg.Payment.ZaloPayURL),
	)

	orderService := order.NewService(order.Deps{
		UnitOfWork: order.NewUnitOfWork(db.NewTransactor(pg.Pool)),
		Reader:     order.NewStores(pg.Pool),
		Reports:    order.NewReportRepository(sqlxDB),
		Gateway:    gateway,
		Rates:      rates,
		Events:     publisher,
		Keys:       keys,
		KeyTTL:     cfg.Idempotency.TTL,
		Metrics:    orderMetrics,
	})
	cartService := cart.NewService(cart.NewRepository(pg.Pool), catalog.NewRepository(pg.Pool))

	router := transport.NewRouter(transport.RouterDeps{
		Orders:   orderService,
		Carts:    cartService,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		PaymentSecrets: payment.Secrets{
			payment.MethodMomo:    cfg.Payment.MomoSecret,
			payment.MethodZaloPay: cfg.Payment.ZaloPaySecret,
		},
		Metrics:  serverMetrics,
		Gatherer: registry,
		Health:   pg.Pool.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, using debug")
	}
}

// newIdempotencyStore uses Redis when configured so keys are shared between
// replicas. Without Redis, keys only live in this process.
func newIdempotencyStore(ctx context.Context, cfg config.RedisConfig) (idempotency.Store, func()) {
	if !cfg.Enabled() {
		log.Warn().Msg("REDIS_ADDR not set, idempotency keys are kept in memory")
		return idempotency.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr).Msg("Failed to connect to redis")
	}
	log.Info().Str("addr", cfg.Addr).Msg("Connected to redis")

	return idempotency.NewRedisStore(client, serviceName+":"), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}
}

func newPublisher(cfg config.KafkaConfig) events.Publisher {
	if !cfg.Enabled() {
		log.Warn().Msg("KAFKA_BROKERS not set, order events are not published")
		return events.NopPublisher{}
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Publishing order events to kafka")
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
