package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/config"
	"github.com/sneakyguy/reddit-mentions-bot/internal/digest"
	"github.com/sneakyguy/reddit-mentions-bot/internal/reddit"
	"github.com/sneakyguy/reddit-mentions-bot/internal/scanner"
	"github.com/sneakyguy/reddit-mentions-bot/internal/scheduler"
	"github.com/sneakyguy/reddit-mentions-bot/internal/scoring"
	"github.com/sneakyguy/reddit-mentions-bot/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
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

	logrus.Info("Starting Reddit Mentions Bot")

	// Process-scoped context: cancelled on shutdown so background work
	// started by handlers does not outlive the server.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logrus.Fatalf("Failed to ensure database schema: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
		logrus.Info("Redis connected, digest run lock is cross-instance")
	} else {
		logrus.Info("No REDIS_URL configured, digest run lock is in-process only")
	}

	redditClient := reddit.NewClient(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent, cfg.RedditRequestDelay)

	var scorer scoring.Scorer = scoring.Disabled{}
	if cfg.ScoringEndpoint != "" {
		scorer = scoring.NewHTTPScorer(cfg.ScoringEndpoint)
	}

	scanOpts := scanner.DefaultOptions()
	scanOpts.ColdStartLimit = cfg.ColdStartLimit
	scanOpts.ColdStartWindow = cfg.ColdStartWindow
	scanOpts.CatchUpLimit = cfg.CatchUpLimit
	scannerService := scanner.New(db, db, redditClient, scorer, scanOpts)

	var mailer digest.Mailer
	if cfg.EmailEnabled() {
		mailer = digest.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.DigestFromEmail)
	} else {
		logrus.Warn("SMTP not configured, digest emails disabled")
		mailer = discardMailer{}
	}

	var digestScanner digest.BrandScanner
	if cfg.RedditEnabled() {
		digestScanner = scannerService
	} else {
		logrus.Warn("Reddit credentials not configured, digest runs without re-scans")
	}
	digestService := digest.NewService(cfg, db, db, db, digestScanner, mailer, rdb)

	schedulerService := scheduler.NewService(cfg, digestService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(scannerService)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(ctx, digestService)).Methods("POST")
	router.HandleFunc("/scan/{brandID}", scanHandler(scannerService)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

// discardMailer drops digests when SMTP is not configured.
type discardMailer struct{}

func (discardMailer) Send(to, subject, htmlBody string) error {
	logrus.Infof("SMTP disabled, dropping digest for %s", to)
	return nil
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(scannerService *scanner.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(scannerService.GetMetrics()))
	}
}

// digestRunner is the slice of the digest service the trigger endpoint
// needs.
type digestRunner interface {
	Run(ctx context.Context) (*digest.Summary, error)
}

// triggerHandler launches a digest run in the background. The run is
// tied to the process context, not the request context, so it survives
// the response but not a shutdown.
func triggerHandler(ctx context.Context, digestService digestRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if _, err := digestService.Run(ctx); err != nil {
				logrus.Errorf("Manual digest trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Digest run triggered successfully"}`))
	}
}

func scanHandler(scannerService *scanner.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brandID, err := strconv.ParseInt(mux.Vars(r)["brandID"], 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid brand id"}`, http.StatusBadRequest)
			return
		}

		result, err := scannerService.Scan(r.Context(), brandID)
		if err != nil {
			logrus.Errorf("Manual scan of brand %d failed: %v", brandID, err)
			http.Error(w, `{"error":"scan failed"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"new_mentions":     result.NewCount,
			"updated_mentions": result.UpdatedCount,
			"total_mentions":   len(result.Mentions),
		})
	}
}
