package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flathound/flathound/app/api"
	"github.com/flathound/flathound/app/cache"
	"github.com/flathound/flathound/app/cfg"
	"github.com/flathound/flathound/app/database"
	"github.com/flathound/flathound/app/harvest"
	"github.com/flathound/flathound/app/jobs"
	"github.com/flathound/flathound/app/match"
	"github.com/flathound/flathound/app/notify"
	"github.com/flathound/flathound/app/parser"
	"github.com/flathound/flathound/app/regions"
	"github.com/flathound/flathound/app/retention"
	"github.com/flathound/flathound/app/scheduler"
)

const (
	harvestJitterFactor = 0.25
	commuteCacheTTL     = 7 * 24 * time.Hour
	httpClientTimeout   = 60 * time.Second
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.LogLevel)
	slog.Info("Starting FlatHound", "version", appCfg.Version)

	// Database connection
	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName, appCfg.DBSSLMode)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	// Region source configurations
	regionCache := regions.NewCache(appCfg.RegionsDir)
	if err := regionCache.Run(); err != nil {
		slog.Error("Failed to load region configurations", "dir", appCfg.RegionsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded region configurations", "count", regionCache.Count(), "dir", appCfg.RegionsDir)

	// Repositories
	listingRepo := database.NewListingRepository(db)
	alertRepo := database.NewAlertRepository(db)
	notificationRepo := database.NewNotificationRepository(db)
	tokenRepo := database.NewTokenRepository(db)

	httpClient := &http.Client{Timeout: httpClientTimeout}

	// Harvest pipeline
	normalizer := harvest.NewNormalizer(appCfg.PriceFloor, appCfg.PriceCeiling,
		appCfg.MaxBedrooms, appCfg.MetroBounds)
	fetcher := harvest.NewFetcher(httpClient, parser.NewParser(), appCfg.UserAgent)
	harvester := harvest.NewHarvester(regionCache, fetcher, normalizer, listingRepo,
		time.Duration(appCfg.RegionDelaySec)*time.Second)

	// Commute estimation is optional; without a routing service the
	// matcher treats commute constraints as satisfied.
	var estimator match.Estimator
	if appCfg.RoutingURL != "" {
		routing := match.NewRoutingClient(httpClient, appCfg.RoutingURL)
		estimator = routing

		if appCfg.RedisAddr != "" {
			commuteCache, err := cache.NewCache(appCfg.RedisAddr)
			if err != nil {
				slog.Warn("Redis unavailable, commute estimates uncached", "error", err)
			} else {
				defer commuteCache.Close()
				estimator = match.NewCachedEstimator(routing, commuteCache, commuteCacheTTL)
			}
		}
		slog.Info("Commute filtering enabled", "routing_url", appCfg.RoutingURL)
	} else {
		slog.Info("Commute filtering disabled (ROUTING_URL not set)")
	}

	matcher := match.NewMatcher(alertRepo, listingRepo, notificationRepo, estimator,
		time.Duration(appCfg.MatchLookbackMinutes)*time.Minute, appCfg.MatchCapPerAlert)

	// Outbound mail
	var deliverer notify.Deliverer
	if appCfg.MailerURL != "" {
		deliverer = notify.NewMailer(httpClient, appCfg.MailerURL, appCfg.MailerAPIKey, appCfg.MailerFrom)
	} else if appCfg.AllowNoMailer {
		slog.Warn("Running without a mailer, notification delivery is skipped")
	} else {
		slog.Error("No mailer endpoint configured; set --mailer-url or --allow-no-mailer")
		os.Exit(1)
	}

	notifier := notify.NewNotifier(notificationRepo, deliverer, appCfg.PublicURL,
		time.Duration(appCfg.NotifyDelaySec)*time.Second,
		time.Duration(appCfg.RetryAgeMinutes)*time.Minute,
		appCfg.RetrySweepLimit, appCfg.MaxDeliveryAttempts)

	purger := retention.NewPurger(listingRepo, notificationRepo, tokenRepo, alertRepo,
		retention.Ages{
			ListingActive: time.Duration(appCfg.ListingActiveDays) * 24 * time.Hour,
			ListingPurge:  time.Duration(appCfg.ListingPurgeDays) * 24 * time.Hour,
			Notification:  time.Duration(appCfg.NotificationDays) * 24 * time.Hour,
			Token:         time.Duration(appCfg.TokenDays) * 24 * time.Hour,
			AlertStale:    time.Duration(appCfg.AlertStaleDays) * 24 * time.Hour,
		}, appCfg.RetentionChunk)

	healthChecker := jobs.NewDBHealthChecker(db, listingRepo, alertRepo, notificationRepo)

	// Job orchestration
	sched := scheduler.New(scheduler.SystemClock{}, rand.Float64)
	orchestrator := jobs.NewOrchestrator(sched, harvester, matcher, notifier, purger,
		healthChecker, jobs.Config{
			HarvestInterval:  time.Duration(appCfg.HarvestMinutes) * time.Minute,
			HarvestJitter:    harvestJitterFactor,
			RecencyMinutes:   appCfg.RecencyMinutes,
			DetailDepth:      harvest.Depth(appCfg.DetailDepth),
			CleanupInterval:  time.Duration(appCfg.CleanupMinutes) * time.Minute,
			CleanupEnabled:   appCfg.EnableCleanup,
			HealthInterval:   time.Duration(appCfg.HealthMinutes) * time.Minute,
			HealthEnabled:    appCfg.EnableHealthChecks,
			MaxNotifications: appCfg.MaxNotifications,
			ShutdownGrace:    time.Duration(appCfg.ShutdownGraceSec) * time.Second,
		})
	orchestrator.Start()

	// HTTP control surface
	apiHandler := api.NewHandler(orchestrator, db, listingRepo)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	// Graceful shutdown: stop accepting requests first, then wait out
	// in-flight jobs.
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	orchestrator.Stop()

	slog.Info("Shutdown complete")
}

func setupLogger(level string) {
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

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
