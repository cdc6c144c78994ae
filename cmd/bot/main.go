package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/config"
	"tg_assistant_bot/internal/conversation"
	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/domain"
	"tg_assistant_bot/internal/feature/download"
	"tg_assistant_bot/internal/feature/ledger"
	"tg_assistant_bot/internal/feature/meta"
	"tg_assistant_bot/internal/feature/prayer"
	"tg_assistant_bot/internal/health"
	"tg_assistant_bot/internal/logging"
	"tg_assistant_bot/internal/store"
	"tg_assistant_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	redisConnectTimeout     = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	// The cache is best-effort: a Redis outage at boot only disables the
	// download-link cache.
	var cache *store.Cache
	redisCtx, cancelRedis := context.WithTimeout(context.Background(), redisConnectTimeout)
	cache, err = store.NewCache(redisCtx, cfg)
	cancelRedis()
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, continuing without cache")
		cache = nil
	} else {
		logger.WithField("event", "redis_connect").Info("connected to redis")
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}
	messenger := tgClient.Messenger()

	entryRepository := domain.NewEntryRepository(mongoManager.Entries())
	totalsProvider := store.NewTotalsProvider(mongoManager.Entries())
	conversations := conversation.NewStore()

	addCommand, err := ledger.NewAddCommand(entryRepository, conversations, messenger, logger)
	if err != nil {
		fatal(logger, "add command setup error", err)
	}
	balanceCommand, err := ledger.NewBalanceCommand(totalsProvider, messenger, logger)
	if err != nil {
		fatal(logger, "balance command setup error", err)
	}

	providers, err := download.BuildProviders(cfg.DownloadProviders)
	if err != nil {
		fatal(logger, "download provider setup error", err)
	}
	var autoCommand *download.AutoCommand
	if len(providers) > 0 {
		if cache != nil {
			autoCommand, err = download.NewAutoCommand(providers, cache, messenger, logger)
		} else {
			autoCommand, err = download.NewAutoCommand(providers, nil, messenger, logger)
		}
		if err != nil {
			fatal(logger, "auto command setup error", err)
		}
	} else {
		logger.Warn("no download providers configured, /auto disabled")
	}

	prayerCommand, err := prayer.NewCommand(prayer.NewHTTPClient("", nil), cfg.PrayerCity, messenger, logger)
	if err != nil {
		fatal(logger, "prayer command setup error", err)
	}
	startCommand, err := meta.NewStartCommand(messenger)
	if err != nil {
		fatal(logger, "start command setup error", err)
	}
	helpCommand, err := meta.NewHelpCommand(messenger)
	if err != nil {
		fatal(logger, "help command setup error", err)
	}

	registry := dispatch.NewRegistry(cfg.StrictCommands)
	commands := []dispatch.Command{addCommand, balanceCommand, prayerCommand, startCommand, helpCommand}
	if autoCommand != nil {
		commands = append(commands, autoCommand)
	}
	for _, cmd := range commands {
		if err := registry.Register(cmd); err != nil {
			fatal(logger, "command registration error", err)
		}
	}

	var fallbacks []dispatch.Fallback
	if autoCommand != nil {
		fallbacks = append(fallbacks, autoCommand)
	}

	dispatcher := dispatch.New(registry, conversations, messenger, logger, fallbacks...)
	tgClient.SetHandler(dispatcher)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	var redisPinger health.Pinger
	if cache != nil {
		redisPinger = cache
	}
	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, redisPinger, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.WithError(err).Error("redis disconnect error")
		} else {
			logger.WithField("event", "redis_disconnect").Info("redis client disconnected")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func fatal(logger *logrus.Entry, msg string, err error) {
	logger.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
