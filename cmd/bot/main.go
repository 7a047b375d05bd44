package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/dixielabs/modmail/internal/api/http"
	"github.com/dixielabs/modmail/internal/api/http/handlers"
	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/events"
	"github.com/dixielabs/modmail/internal/observability"
	"github.com/dixielabs/modmail/internal/persistence"
	"github.com/dixielabs/modmail/internal/repository"
	"github.com/dixielabs/modmail/internal/service"
	"github.com/dixielabs/modmail/internal/transport/discord"
	"github.com/dixielabs/modmail/internal/worker"
)

const requestTimeout = 30 * time.Second

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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	timerRepo := repository.NewTimerRepository(pool)
	watcherRepo := repository.NewWatcherRepository(pool)
	modLogRepo := repository.NewModLogRepository(pool)
	verificationRepo := repository.NewVerificationRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	ticketCache := repository.NewTicketCache(redis.Client)

	dispatcher := events.NewInMemoryDispatcher()
	amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Fatal("failed to connect amqp", zap.Error(err))
	}
	amqpPublisher.BindTo(dispatcher)
	defer amqpPublisher.Close() //nolint:errcheck

	metrics := observability.NewMetrics()

	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		logger.Fatal("failed to build discord session", zap.Error(err))
	}
	client := discord.NewClient(session, cfg.Discord, logger)

	transcripts := service.NewTranscriptService(client, client, cfg.Discord.LogChannelID, logger)

	categoryID := ""
	if len(cfg.Discord.TicketCategoryIDs) > 0 {
		categoryID = cfg.Discord.TicketCategoryIDs[0]
	}
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		TimerRepo:   timerRepo,
		WatcherRepo: watcherRepo,
		Cache:       ticketCache,
		Messenger:   client,
		Transcripts: transcripts,
		Dispatcher:  dispatcher,
		Config:      cfg.Tickets,
		CategoryID:  categoryID,
		Metrics:     metrics,
		Logger:      logger,
	})

	replies := service.NewReplyService(ticketRepo, responseRepo, client, logger)
	modLogs := service.NewModLogService(modLogRepo, client, cfg.Discord.LogChannelID, logger)
	verification := service.NewVerificationService(verificationRepo, client, cfg.Verification, cfg.Discord, logger)
	pricing := service.NewPricingService(cfg.Pricing, client, logger)

	gateway := discord.NewGateway(discord.GatewayDependencies{
		Session:      session,
		Client:       client,
		Config:       cfg.Discord,
		Lifecycle:    lifecycle,
		Replies:      replies,
		Transcripts:  transcripts,
		ModLogs:      modLogs,
		Verification: verification,
		Pricing:      pricing,
		Logger:       logger,
	})
	if err := gateway.Start(); err != nil {
		logger.Fatal("failed to open discord gateway", zap.Error(err))
	}
	defer gateway.Close() //nolint:errcheck

	timerWorker := worker.NewTimerWorker(lifecycle, cfg.Tickets.PollInterval, logger)
	go timerWorker.Run(ctx)

	verificationWorker := worker.NewVerificationWorker(verification, cfg.Verification.SweepInterval, logger)
	if err := verificationWorker.Start(ctx); err != nil {
		logger.Fatal("failed to start verification sweep", zap.Error(err))
	}
	defer verificationWorker.Stop()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, requestTimeout)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, pg, redis),
		Tickets:  handlers.NewTicketsHandler(ticketRepo),
		ModLogs:  handlers.NewModLogsHandler(modLogRepo),
		OpsToken: cfg.App.OpsToken,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
