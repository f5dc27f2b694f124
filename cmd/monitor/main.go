package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/alerts"
	"github.com/sneakyguy/reddit-mentions-bot/internal/config"
	"github.com/sneakyguy/reddit-mentions-bot/internal/monitor"
	"github.com/sneakyguy/reddit-mentions-bot/internal/reddit"
	"github.com/sneakyguy/reddit-mentions-bot/internal/retry"
	"github.com/sneakyguy/reddit-mentions-bot/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Reddit Realtime Monitor")

	if !cfg.RedditEnabled() {
		logrus.Error("Reddit API credentials not found in environment variables")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	redditClient := reddit.NewClient(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent, cfg.RedditRequestDelay)
	redditClient.PollInterval = cfg.StreamPollInterval

	dispatcher := alerts.NewTelegramDispatcher(cfg.TelegramBotToken, retry.Dispatcher())
	if !dispatcher.Enabled() {
		logrus.Warn("TELEGRAM_BOT_TOKEN not configured, alerts will not be delivered")
	}

	service := monitor.NewService(db, db, redditClient, dispatcher)

	monitoringConfig, err := service.BuildConfig(ctx)
	if err != nil {
		logrus.Errorf("Failed to build monitoring configuration: %v", err)
		os.Exit(1)
	}

	service.Run(ctx, monitoringConfig)

	logrus.Info("Reddit Realtime Monitor stopped")
}
