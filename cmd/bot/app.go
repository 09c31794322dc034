package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aliskhannn/competence-bot/internal/config"
	"github.com/aliskhannn/competence-bot/internal/delivery/telegram"
	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/infra/events"
	"github.com/aliskhannn/competence-bot/internal/infra/memory"
	"github.com/aliskhannn/competence-bot/internal/infra/mongodb"
	"github.com/aliskhannn/competence-bot/internal/infra/postgres"
	"github.com/aliskhannn/competence-bot/internal/logger"
	"github.com/aliskhannn/competence-bot/internal/repository"
	"github.com/aliskhannn/competence-bot/internal/service"
)

func runBot(ctx context.Context) error {
	cfg, err := config.Load(config.Options{RequireTelegram: true})
	if err != nil {
		return err
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	bot.Debug = cfg.Env == "local"
	log.Info("authorized on telegram", zap.String("account", bot.Self.UserName))

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher := openPublisher(cfg, log)
	defer closePublisher()

	clock := service.SystemClock{}

	// Initialize repositories.
	sessionRepo := repository.NewSessionRepository(store)
	userRepo := repository.NewUserRepository(store)
	catalogRepo := repository.NewCatalogRepository(cfg.CatalogPath)

	// Initialize services.
	catalog := service.NewCatalogCache(catalogRepo, cfg.Catalog.CacheTTL, clock, log)
	if _, err := catalog.Catalog(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	coalescer := service.NewCoalescer[*entities.Session](cfg.Coalescer.GracePeriod, clock)
	coalescer.SetCallTimeout(cfg.Coalescer.CallTimeout)
	sessionService := service.NewSessionService(sessionRepo, coalescer, clock, log)
	progressAggregator := service.NewProgressAggregator(sessionRepo, catalog, clock, log)
	userService := service.NewUserService(userRepo, clock)
	quizFlow := service.NewQuizFlow(sessionService, progressAggregator, catalog, userService, publisher, log)

	maintenance := service.NewMaintenanceService(sessionRepo, cfg.Maintenance.Schedule, clock, log)
	maintenance.AddSweeper("sessions", coalescer)

	handler := telegram.NewHandler(bot, log, quizFlow, userService)
	if err := handler.RegisterCommands(); err != nil {
		log.Warn("failed to set bot commands", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Run(gctx)
	})
	g.Go(func() error {
		return maintenance.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func runDuplicates(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		return err
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	maintenance := service.NewMaintenanceService(repository.NewSessionRepository(store), "", nil, log)
	report, err := maintenance.SweepDuplicates(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "sessions: %d, malformed: %d, unknown level: %d, duplicate groups: %d\n",
		report.Sessions, report.Malformed, report.UnknownLevel, len(report.Groups))
	for _, g := range report.Groups {
		_, _ = fmt.Fprintf(out, "%s %s %s: canonical %s (%s), duplicates %v\n",
			g.UserID, g.Competence, g.Level, g.CanonicalID, g.State, g.Duplicates)
	}

	return nil
}

func runCatalogCheck(out io.Writer) error {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		return err
	}

	catalog, err := repository.NewCatalogRepository(cfg.CatalogPath).Load()
	if err != nil {
		return err
	}

	for _, d := range catalog.Dimensions() {
		_, _ = fmt.Fprintf(out, "%s. %s: %d competences\n", d.ID, d.Name, len(catalog.CompetencesOf(d.ID)))
	}

	return nil
}

// openStore connects the configured document store. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (docstore.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		dsn, err := cfg.DB.DSN()
		if err != nil {
			return nil, nil, err
		}

		pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{
			MaxConns:        int32(cfg.DB.MaxConnections),
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		store := postgres.NewStore(pool, log)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}

		return store, func() {
			store.Close()
			pool.Close()
		}, nil

	case config.DriverMongo:
		store, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.PollInterval, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}

		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Warn("failed to disconnect mongo", zap.Error(err))
			}
		}, nil

	default:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}

// openPublisher connects the event broker, or returns a publisher that
// drops events when none is configured or reachable.
func openPublisher(cfg *config.Config, log *zap.Logger) (service.EventPublisher, func()) {
	if cfg.Events.URL == "" {
		return events.NopPublisher{}, func() {}
	}

	p, err := events.NewPublisher(cfg.Events.URL, cfg.Events.Exchange, log)
	if err != nil {
		log.Warn("event broker unavailable, events are dropped", zap.Error(err))
		return events.NopPublisher{}, func() {}
	}

	return p, p.Close
}
