package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-intake/internal/api/http"
	"github.com/spec-kit/ticket-intake/internal/api/http/handlers"
	"github.com/spec-kit/ticket-intake/internal/config"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/extraction"
	"github.com/spec-kit/ticket-intake/internal/gate"
	"github.com/spec-kit/ticket-intake/internal/intent"
	"github.com/spec-kit/ticket-intake/internal/ledger"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/oracle"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/internal/repository"
	"github.com/spec-kit/ticket-intake/internal/service"
	"github.com/spec-kit/ticket-intake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	store := openStore(cfg.Store, pg, logger)
	tickets := ledger.New(store, logger)
	defer tickets.Close()

	completer, err := oracle.NewCompleter(ctx, cfg.Oracle, logger)
	if err != nil {
		logger.Fatal("failed to init oracle", zap.Error(err))
	}
	var extractor extraction.Extractor = extraction.NewKeywordExtractor()
	if completer != nil {
		extractor = extraction.NewOracleExtractor(completer, logger)
	}

	dispatcher := events.NewInMemoryDispatcher()
	var publisher service.EventPublisher
	if redis.Enabled() {
		publisher = redis
	}
	service.NewNotificationService(dispatcher, logger, publisher, cfg.Redis.EventsChannel).RegisterHandlers()

	ticketService, err := service.NewTicketService(service.TicketDependencies{
		Ledger:     tickets,
		Extractor:  extractor,
		Gate:       gate.NewValidator(completer, logger),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config:     cfg.Lifecycle,
	})
	if err != nil {
		logger.Fatal("failed to init ticket service", zap.Error(err))
	}
	chatService := service.NewChatService(service.ChatDependencies{
		Tickets:    ticketService,
		Classifier: intent.NewClassifier(completer, logger),
		Completer:  completer,
		Metrics:    metrics,
		Logger:     logger,
		Actor:      cfg.Lifecycle.Reviewer,
	})

	var locker worker.Locker = worker.NoopLocker{}
	if redis.Enabled() {
		locker = worker.NewRedisLocker(redis.Client, cfg.Redis.LeaseKey, cfg.Redis.LeaseTTL())
	}
	reconciler := worker.NewReconciler(ticketService, locker, cfg.Lifecycle.PollInterval(), metrics, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	checks := map[string]handlers.Pinger{"store": store}
	if pg.Enabled() {
		checks["postgres"] = pg
	}
	if redis.Enabled() {
		checks["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks),
		Metrics: handlers.NewMetricsHandler(metrics),
		Chat:    handlers.NewChatHandler(chatService),
		Tickets: handlers.NewTicketsHandler(ticketService, cfg.Lifecycle.Reviewer),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()
}

func openStore(cfg config.StoreConfig, pg *persistence.Postgres, logger *zap.Logger) repository.TicketStore {
	switch cfg.Backend {
	case "postgres":
		logger.Info("using postgres ticket store")
		return repository.NewPostgresStore(pg.PoolHandle())
	case "memory":
		logger.Warn("using in-memory ticket store; data is lost on restart")
		return repository.NewMemoryStore()
	default:
		logger.Info("using file ticket store",
			zap.String("tickets_path", cfg.TicketsPath),
			zap.String("memory_path", cfg.MemoryPath))
		return repository.NewFileStore(cfg.TicketsPath, cfg.MemoryPath)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
