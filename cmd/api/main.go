package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/repairdesk/internal/api/http"
	"github.com/spec-kit/repairdesk/internal/api/http/handlers"
	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/persistence"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/service"
	"github.com/spec-kit/repairdesk/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.App, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	mongoStore, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("failed to connect mongo", zap.Error(err))
	}
	defer mongoStore.Close(context.Background())

	redisStore := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisStore.Close()

	dependencies := map[string]handlers.Pinger{}

	var (
		userRepo    repository.UserRepository
		paymentRepo repository.PaymentMethodRepository
	)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		userRepo = repository.NewUserRepository(pg.Pool)
		paymentRepo = repository.NewPaymentMethodRepository(pg.Pool)
		dependencies["postgres"] = pg
	} else {
		userRepo, paymentRepo = repository.NewMemoryAccountStore()
	}

	var ticketRepo repository.TicketRepository
	if mongoStore.Enabled() {
		mongoTickets := repository.NewMongoTicketRepository(mongoStore.Database, cfg.Mongo.Collection)
		if err := mongoTickets.EnsureIndexes(ctx); err != nil {
			logger.Fatal("failed to create ticket indexes", zap.Error(err))
		}
		ticketRepo = mongoTickets
		dependencies["mongo"] = mongoStore
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	revocations := auth.NewMemoryRevocationStore()
	if redisStore.Enabled() {
		revocations = auth.NewRedisRevocationStore(redisStore.Client)
		dependencies["redis"] = redisStore
	}

	var publisher service.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		broker, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Fatal("failed to connect rabbitmq", zap.Error(err))
		}
		defer broker.Close()
		publisher = broker
		dependencies["rabbitmq"] = broker
	}

	files, err := storage.NewLocalStorage(cfg.Storage.BasePath, cfg.Storage.MaxUploadBytes, cfg.Storage.MaxAttachmentFiles)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, publisher, logger).RegisterHandlers()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo, revocations)

	authService := service.NewAuthService(userRepo, tokens, cfg.Auth.BcryptCost, logger)
	userService := service.NewUserService(userRepo, ticketRepo, logger)
	paymentService := service.NewPaymentService(paymentRepo)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Tickets:    ticketRepo,
		Users:      userRepo,
		Payments:   paymentRepo,
		Storage:    files,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := httptransport.NewApp(cfg, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Auth:           handlers.NewAuthHandler(authService, authMiddleware),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Users:          handlers.NewUsersHandler(userService),
		PaymentMethods: handlers.NewPaymentMethodsHandler(paymentService),
		AuthMiddleware: authMiddleware,
		RateLimiter:    httptransport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
