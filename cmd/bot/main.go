package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/analysis"
	"github.com/signalhub/keyword-radar/internal/api"
	"github.com/signalhub/keyword-radar/internal/config"
	"github.com/signalhub/keyword-radar/internal/scheduler"
	"github.com/signalhub/keyword-radar/internal/sources"
	"github.com/signalhub/keyword-radar/internal/storage"
	"github.com/signalhub/keyword-radar/internal/trends"
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

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Keyword Radar")

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := storage.EnsureSchema(context.Background(), db); err != nil {
		logrus.Fatalf("Failed to prepare schema: %v", err)
	}

	itemStore := storage.NewItemStore(db)
	keywordStore := storage.NewKeywordStore(db)

	feedClient := sources.NewFeedClient(cfg.FeedBaseURL, cfg.FeedUserAgent,
		time.Duration(cfg.RequestDelayMs)*time.Millisecond)

	classifier := analysis.NewClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel,
		time.Duration(cfg.ClassifyTimeoutS)*time.Second)

	aggregator := trends.NewAggregator(itemStore, keywordStore)

	runner := scheduler.NewCycleRunner(feedClient, classifier, itemStore, scheduler.CycleDefaults{
		Channels:        cfg.DefaultChannels,
		MaxPosts:        cfg.MaxPosts,
		MaxComments:     cfg.MaxComments,
		ClassifyWorkers: cfg.ClassifyWorkers,
	})

	schedulerService := scheduler.NewService(keywordStore, runner, aggregator,
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		cfg.MaxConcurrentCycles, cfg.DefaultFetchInterval)

	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	handler := api.NewHandler(schedulerService, itemStore, keywordStore, aggregator)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // synchronous fetch cycles can be slow
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
