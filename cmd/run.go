package cmd

import (
	"context"
	"fmt"
	"time"

	"minebot/bot"
	"minebot/config"
	"minebot/database"
	"minebot/domain/clock"
	"minebot/domain/services"
	"minebot/events"
	"minebot/infrastructure"
	"minebot/infrastructure/observability"
	"minebot/repository"

	log "github.com/sirupsen/logrus"
)

const guildStateTimeout = 30 * time.Second

// Run initializes and starts the application
func Run(ctx context.Context) error {
	// Load configuration
	cfg := config.Get()
	configureLogging(cfg.LogLevel)
	log.Info("Starting minebot...")

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.WithError(err).Warn("Failed to initialize metrics; continuing without them")
	}
	metrics := observability.GetMetrics()

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Initialize event bus and, when configured, NATS publishing
	eventBus := events.NewBus()
	bot.RegisterBotSubscriptions(eventBus)

	var publisher events.Publisher = eventBus
	var natsClient *infrastructure.NATSClient
	if cfg.NATSEnabled() {
		log.WithField("servers", cfg.NATSServers).Info("Connecting to NATS...")
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		mapper := infrastructure.NewEventSubjectMapper()
		if err := infrastructure.EnsureDomainEventStream(natsClient, mapper); err != nil {
			return fmt.Errorf("failed to ensure domain event stream: %w", err)
		}
		publisher = infrastructure.NewNATSEventPublisher(natsClient, mapper, eventBus, metrics)
		log.Info("NATS event publishing enabled")
	} else {
		log.Info("NATS_SERVERS not set; domain events stay in-process")
	}

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, publisher)

	// Initialize tracking pipeline
	writerCfg := services.DefaultDurabilityWriterConfig()
	if cfg.DurabilityMaxRetries >= 0 {
		writerCfg.MaxRetries = uint64(cfg.DurabilityMaxRetries)
	}
	writer := services.NewDurabilityWriter(repository.NewParticipationRepository(db), writerCfg, metrics)
	tracker := services.NewVoiceSessionTracker(writer, cfg.MinParticipation, metrics)

	// Initialize Discord session before the services that read its state
	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	clk := clock.New()
	members := bot.NewVoiceMembers(session, cfg.OrgMemberRoleID)
	operationService := services.NewOperationService(uowFactory, tracker, members, clk, metrics)
	payrollService := services.NewPayrollService(uowFactory, operationService, services.NewPayrollEngine(), clk, metrics)

	// Initialize Discord bot
	log.Info("Initializing Discord bot...")
	discordBot, err := bot.New(bot.Config{
		Token:           cfg.DiscordToken,
		OrgMemberRoleID: cfg.OrgMemberRoleID,
		CurrencyLabel:   cfg.CurrencyLabel,
	}, session, bot.Services{
		Operations: operationService,
		Payroll:    payrollService,
		Tracker:    tracker,
		Clock:      clk,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}
	log.Info("Discord bot initialized successfully")

	// Resume operations that were active when the previous process stopped
	discordBot.WaitForGuilds(ctx, guildStateTimeout)
	if resumed, err := operationService.Resume(ctx); err != nil {
		log.WithError(err).Error("Failed to resume active operations")
	} else {
		log.WithField("operations", resumed).Info("Operation resume complete")
	}

	discordBot.StartWorkers(ctx, cfg.FlushInterval)

	// Wait for context cancellation
	log.Infof("Bot is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Info("Shutting down bot...")

	// Stop event intake before draining queued writes
	if err := discordBot.Close(); err != nil {
		log.WithError(err).Error("Error closing Discord bot")
	}

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracker.Flush(clk.Now())
	if err := writer.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Durability writer did not drain before shutdown")
	}

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down metrics")
	}

	log.Info("Shutdown completed")
	return nil
}

func configureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown LOG_LEVEL, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
