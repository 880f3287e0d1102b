package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storefront-service/internal/api"
	"storefront-service/internal/cart"
	"storefront-service/internal/config"
	"storefront-service/internal/events"
	"storefront-service/internal/kv"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/migrations"
)

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (events.Publisher, func()) {
	switch cfg.EventBus {
	case config.BusKafka:
		publisher := events.NewKafkaPublisher(config.NewKafkaWriter(cfg.Brokers(), cfg.KafkaTopic))
		consumer := events.NewOperatorConsumer(config.NewKafkaReader(cfg.Brokers(), cfg.KafkaTopic, cfg.KafkaGroupID))
		go consumer.Run(ctx)
		return publisher, func() {
			if err := consumer.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing operator consumer")
			}
		}
	case config.BusAMQP:
		publisher, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ unavailable, order events disabled")
			return events.NoopPublisher{}, func() {}
		}
		return publisher, func() {}
	default:
		return events.NoopPublisher{}, func() {}
	}
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn, err := cfg.DataSourceName()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	db, err := store.Connect(cfg.DBDriver, dsn, cfg.DBConnectRetries, 3*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to remote store")
	}
	defer db.Close()

	if err := migrations.AutoMigrate(cfg.DBDriver, cfg.MigrationRetries, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate storefront tables")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	sessions := kv.NewRedisStore(rdb)
	if err := sessions.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis not reachable yet")
	}

	publisher, closeConsumer := newPublisher(ctx, cfg)
	defer func() {
		closeConsumer()
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	shippingFee, err := cfg.ShippingFeeAmount()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid shipping fee")
	}

	remote := store.NewSQLStore(db)
	productRepo := repository.NewProductRepository(remote)
	orderRepo := repository.NewOrderRepository(remote)
	articleRepo := repository.NewArticleRepository(remote)

	orderService := service.NewOrderService(
		orderRepo,
		service.NewCatalogValidator(productRepo, cfg.ReadRetries),
		service.NewStockReconciler(productRepo, cfg.StockReconcileMode),
		sessions,
		publisher,
		shippingFee,
		cfg.CheckoutLockTTL,
	)
	viewRecorder := service.NewViewRecorder(articleRepo, sessions, cfg.ViewCountMode, cfg.SessionTTL)
	handler := api.NewHandler(cart.NewManager(sessions, cfg.CartTTL), productRepo, orderService, viewRecorder)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	handler.Register(e, api.JWTMiddleware(cfg.JWTSecret), api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst), cfg.AppName)

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server stopped")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Str("reconcile_mode", cfg.StockReconcileMode).Msg("Storefront service started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}
}
