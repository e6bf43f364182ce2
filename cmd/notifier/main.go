package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"placement_notifier/internal/channel"
	"placement_notifier/internal/classify/gemini"
	"placement_notifier/internal/config"
	"placement_notifier/internal/pipeline"
	"placement_notifier/internal/publisher"
	"placement_notifier/internal/scheduler"
	"placement_notifier/internal/service"
	"placement_notifier/internal/source/gmail"
	"placement_notifier/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	channelNames := cfg.Channels()
	if len(channelNames) == 0 {
		logger.Error("no delivery channels enabled")
		os.Exit(1)
	}

	// Initialize stores
	txManager := postgres.NewTransactionManager(db)
	offerStore := postgres.NewOfferStore(db, txManager, channelNames)
	noticeStore := postgres.NewNoticeStore(db)
	subscriberStore := postgres.NewSubscriberStore(db)

	// Initialize delivery channels
	var channels []service.Channel
	if cfg.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			BaseURL:    cfg.Telegram.BaseURL,
			Token:      cfg.Telegram.Token,
			Timeout:    cfg.Telegram.Timeout,
			RatePerSec: cfg.Telegram.RatePerSec,
			Burst:      cfg.Telegram.Burst,
		}, logger))
	}
	if cfg.WebPush.Enabled {
		channels = append(channels, channel.NewWebPush(channel.WebPushConfig{
			VAPIDPublicKey:  cfg.WebPush.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.WebPush.VAPIDPrivateKey,
			Subscriber:      cfg.WebPush.Subscriber,
			TTL:             cfg.WebPush.TTL,
			Timeout:         cfg.WebPush.Timeout,
		}, subscriberStore, logger))
	}

	// Initialize RabbitMQ publisher (optional)
	var eventPublisher service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		eventPublisher = rabbitMQ
	}

	// Initialize classification gateway and extraction pipelines
	gateway := gemini.New(gemini.Config{
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		APIKey:         cfg.Gemini.APIKey,
		Timeout:        cfg.Gemini.Timeout,
		MaxAttempts:    cfg.Gemini.Retry.MaxAttempts,
		InitialBackoff: cfg.Gemini.Retry.InitialBackoff,
		MaxBackoff:     cfg.Gemini.Retry.MaxBackoff,
	}, logger)

	offerPipeline := pipeline.NewOfferPipeline(gateway, logger)
	noticePipeline := pipeline.NewNoticePipeline(gateway, logger)

	// Initialize mailbox source
	mailbox := gmail.New(gmail.Config{
		BaseURL:        cfg.Gmail.BaseURL,
		TokenURL:       cfg.Gmail.TokenURL,
		ClientID:       cfg.Gmail.ClientID,
		ClientSecret:   cfg.Gmail.ClientSecret,
		RefreshToken:   cfg.Gmail.RefreshToken,
		Query:          cfg.Gmail.Query,
		MaxResults:     cfg.Gmail.MaxResults,
		Timeout:        cfg.Gmail.Timeout,
		MaxAttempts:    cfg.Gmail.Retry.MaxAttempts,
		InitialBackoff: cfg.Gmail.Retry.InitialBackoff,
		MaxBackoff:     cfg.Gmail.Retry.MaxBackoff,
	}, logger)

	// Create services
	dispatchService := service.NewDispatchService(
		offerStore,
		noticeStore,
		subscriberStore,
		channels,
		logger,
	)

	intakeService := service.NewIntakeService(
		mailbox,
		offerPipeline,
		noticePipeline,
		offerStore,
		noticeStore,
		eventPublisher,
		dispatchService,
		logger,
	)

	sched := scheduler.NewScheduler(intakeService, dispatchService, cfg.Intake.Interval, cfg.Intake.PassTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting placement notifier",
		"interval", cfg.Intake.Interval,
		"channels", channelNames,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
