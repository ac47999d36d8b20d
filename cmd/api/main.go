package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-agent/internal/api/http"
	"github.com/spec-kit/support-agent/internal/api/http/handlers"
	"github.com/spec-kit/support-agent/internal/auth"
	"github.com/spec-kit/support-agent/internal/config"
	"github.com/spec-kit/support-agent/internal/conversation"
	"github.com/spec-kit/support-agent/internal/events"
	"github.com/spec-kit/support-agent/internal/guardrail"
	"github.com/spec-kit/support-agent/internal/llm"
	"github.com/spec-kit/support-agent/internal/observability"
	"github.com/spec-kit/support-agent/internal/persistence"
	"github.com/spec-kit/support-agent/internal/repository"
	"github.com/spec-kit/support-agent/internal/service"
	"github.com/spec-kit/support-agent/internal/tools"
	"github.com/spec-kit/support-agent/internal/worker"
	"github.com/spec-kit/support-agent/migrations"
)

const eventQueueSize = 256

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	pool := pg.PoolHandle()
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	analyticsRepo := repository.NewAnalyticsRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	returnRepo := repository.NewReturnRepository(pool)
	storeRepo := repository.NewStoreRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	var locker conversation.TurnLocker = conversation.NewKeyedMutex()
	var redis *persistence.Redis
	if cfg.Redis.TurnLock {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis for turn lock", zap.Error(err))
		}
		defer redis.Close()
		locker = conversation.ChainLocker{
			locker,
			conversation.NewRedisLocker(redis.Client, time.Duration(cfg.TurnBudgetSeconds())*time.Second),
		}
	}

	dispatcher := events.NewInMemoryDispatcher()

	var sinks []service.EventSink
	var kafka *events.KafkaPublisher
	if len(cfg.Notification.KafkaBrokers) > 0 {
		kafka = events.NewKafkaPublisher(cfg.Notification.KafkaBrokers, cfg.Notification.KafkaTopic)
		sinks = append(sinks, kafka)
	}
	if cfg.Notification.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSender(cfg.Notification.WebhookURL, nil))
	}
	forwarder := worker.NewEventForwarder(logger, eventQueueSize, sinks...)
	forwarderCtx, stopForwarder := context.WithCancel(ctx)
	go forwarder.Run(forwarderCtx)

	notificationService := service.NewNotificationService(dispatcher, logger, forwarder)
	worker.StartNotificationWorker(notificationService)

	escalationService := service.NewEscalationService(service.EscalationDependencies{
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		TicketRepo:       ticketRepo,
		AnalyticsRepo:    analyticsRepo,
		Dispatcher:       dispatcher,
		Locker:           locker,
		LockTimeout:      cfg.Agent.TurnLockTimeout(),
		Metrics:          metrics,
		Logger:           logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{StaffRepo: staffRepo})
	staffService := service.NewStaffService(*cfg, service.StaffDependencies{StaffRepo: staffRepo})

	guards, err := guardrail.LoadPolicyFile(cfg.Guardrail.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load guardrail policy", zap.Error(err))
	}

	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal("failed to init llm client", zap.Error(err))
	}

	executor, err := tools.NewExecutor(tools.Dependencies{
		Orders:    orderRepo,
		Returns:   returnRepo,
		Stores:    storeRepo,
		Settings:  settingsRepo,
		Escalator: escalationService,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build tool executor", zap.Error(err))
	}

	engine := conversation.NewEngine(conversation.Dependencies{
		Conversations:  conversationRepo,
		Messages:       messageRepo,
		Analytics:      analyticsRepo,
		Stores:         storeRepo,
		Settings:       settingsRepo,
		Guards:         guards,
		Tools:          executor,
		LLM:            llmClient,
		Escalator:      escalationService,
		Locker:         locker,
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         observability.Tracer(),
		HistoryWindow:  cfg.Agent.HistoryWindow,
		DefaultStoreID: cfg.Agent.DefaultStoreID,
		LockTimeout:    cfg.Agent.TurnLockTimeout(),
		ExcerptChars:   cfg.Agent.TicketExcerptChars,
	})

	readiness := map[string]handlers.Pinger{"postgres": pg}
	if redis != nil {
		readiness["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Chat:           handlers.NewChatHandler(engine),
		Staff:          handlers.NewStaffHandler(authService, staffService),
		StaffTickets:   handlers.NewStaffTicketsHandler(escalationService),
		Customers:      handlers.NewCustomerHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), staffRepo),
		Access:         guards.Default(),
		Gatherer:       registry,
		DevTokens:      cfg.App.Env == "development",
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	stopForwarder()
	forwarder.Wait()
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			logger.Warn("close kafka writer", zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
