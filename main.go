package main

import (
	"context"
	"embed"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"shop-post-bot/config"
	"shop-post-bot/internal/ai"
	"shop-post-bot/internal/bot"
	"shop-post-bot/internal/events"
	"shop-post-bot/internal/localization"
	"shop-post-bot/internal/logging"
	"shop-post-bot/internal/metrics"
	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/photostore"
	"shop-post-bot/internal/scheduler"
	"shop-post-bot/internal/specsearch"
	"shop-post-bot/internal/storage"
	"shop-post-bot/internal/telegram"
	"shop-post-bot/internal/webapp"
)

//go:embed locales
var localeFiles embed.FS

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	if !dotenv {
		logger.Info("No .env file found, using the process environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Bot stopped with error: %v", err)
	}
	logger.Info("Bot stopped")
}

func run(cfg config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewStorage(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if n, err := db.RecoverInterruptedPublications(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warnf("Returned %d interrupted publications to the schedule", n)
	}

	localizer, err := localization.NewLocalizer(localeFiles, cfg.DefaultLanguage, logger)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATSURL, 5*time.Second, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
	}

	m := metrics.New()
	clock := clockwork.NewRealClock()

	api, err := telegram.NewBotAPI(cfg.TelegramBotToken, cfg.DeliveryTimeout)
	if err != nil {
		return err
	}
	logger.Infof("Authorized on account %s", api.Self.UserName)
	messenger := telegram.NewMessenger(api, cfg.SendRatePerSecond, logger)

	settings := moderation.Settings{
		AdminID:             cfg.AdminID,
		ChannelID:           cfg.ChannelID,
		Language:            cfg.DefaultLanguage,
		DeliveryTimeout:     cfg.DeliveryTimeout,
		MaxDeliveryAttempts: cfg.MaxDeliveryAttempts,
		RetryDelay:          cfg.SchedulerInterval,
	}
	deps := moderation.Deps{
		Store:     db,
		Messenger: messenger,
		Texts:     localizer,
		Events:    publisher,
		Metrics:   m,
		Clock:     clock,
		Logger:    logger.Named("moderation"),
	}
	listingPublisher := moderation.NewPublisher(settings, deps)
	controller := moderation.NewController(settings, deps, listingPublisher)

	searchOpts := specsearch.Options{SearchURL: cfg.SpecsSearchURL}
	if cfg.RedisAddr != "" {
		cache, err := specsearch.NewRedisCache(ctx, cfg.RedisAddr, cfg.SpecsCacheTTL)
		if err != nil {
			logger.Warnf("Spec cache disabled: %v", err)
		} else {
			defer cache.Close()
			searchOpts.Cache = cache
		}
	}
	if cfg.GeminiAPIKey != "" {
		extractor, err := ai.NewSpecExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warnf("AI spec extraction disabled: %v", err)
		} else {
			defer extractor.Close()
			searchOpts.AI = extractor
		}
	}

	webOpts := webapp.Options{
		BotToken:       cfg.TelegramBotToken,
		AllowUnsigned:  cfg.WebAppAllowUnsigned,
		InitDataMaxAge: cfg.InitDataMaxAge,
		Lifecycle:      controller,
		Catalog:        db,
		Specs:          specsearch.NewSearcher(searchOpts, logger.Named("specsearch")),
		Metrics:        m,
		Clock:          clock,
	}
	if cfg.MinioEndpoint != "" {
		photos, err := photostore.New(ctx, photostore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		}, logger.Named("photostore"))
		if err != nil {
			return err
		}
		webOpts.Photos = photos
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webapp.NewServer(webOpts, logger.Named("webapp")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	appScheduler, err := scheduler.NewScheduler(clock, cfg.DeliveryTimeout+shutdownTimeout, logger.Named("scheduler"))
	if err != nil {
		return err
	}
	dispatcher := scheduler.NewDispatcher(ctx, db, listingPublisher, clock, m, logger.Named("dispatcher"))
	if err := dispatcher.Register(appScheduler, cfg.SchedulerInterval); err != nil {
		return err
	}
	appScheduler.Start()

	telegramBot := bot.NewBot(api, controller, db, localizer, bot.Config{
		Language:  cfg.DefaultLanguage,
		Location:  cfg.Location,
		WebAppURL: cfg.WebAppURL,
	}, logger.Named("bot"))
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		telegramBot.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Web app API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("Web app API failed: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	if err := appScheduler.Stop(); err != nil {
		logger.Warnf("Scheduler shutdown: %v", err)
	}
	select {
	case <-botDone:
	case <-time.After(cfg.DeliveryTimeout + shutdownTimeout):
		logger.Warn("Bot did not finish its last update in time")
	}
	return nil
}
