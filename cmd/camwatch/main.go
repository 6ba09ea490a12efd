// cmd/camwatch/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"camwatch/internal/config"
	"camwatch/internal/database"
	"camwatch/internal/logfetch"
	"camwatch/internal/metrics"
	"camwatch/internal/monitoring"
	"camwatch/internal/notifications"
	"camwatch/internal/snapshot"
	"camwatch/internal/web"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		info := web.ReadBuildInfo()
		fmt.Printf("camwatch %s\nCommit: %s\nBuilt: %s\n%s %s/%s\n", info.Version, info.GitCommit, info.BuildTime, info.GoVersion, info.GoOS, info.GoArch)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"config_file": *configFile,
		"port":        cfg.Server.Port,
		"hosts":       len(cfg.Hosts),
		"provider":    cfg.Snapshot.Provider,
	}).Info("Starting camwatch")

	if err := run(cfg); err != nil {
		logrus.Fatalf("camwatch stopped with error: %v", err)
	}
	logrus.Info("Shutdown complete")
}

func run(cfg *config.Config) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := database.NewBoltStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	if err := seedStore(ctx, store, cfg); err != nil {
		return err
	}

	metricsCollector := metrics.NewCollector(store)

	dashboardClient := &http.Client{}
	defer dashboardClient.CloseIdleConnections()
	provider, err := snapshot.New(cfg.Snapshot.Provider, dashboardClient, snapshot.Options{
		Timeout:     cfg.Snapshot.Timeout,
		FailureText: cfg.Snapshot.FailureText,
		UserAgent:   cfg.Snapshot.UserAgent,
	})
	if err != nil {
		return err
	}

	fetcher := logfetch.NewFetcher(dashboardClient, logfetch.Options{
		Services:  cfg.Logs.Services,
		Endpoint:  cfg.Logs.Endpoint,
		Timeout:   cfg.Logs.Timeout,
		Dir:       filepath.Join(cfg.Monitoring.DataDir, "logs"),
		UserAgent: cfg.Snapshot.UserAgent,
	})

	notifyClient := &http.Client{Timeout: 60 * time.Second}
	defer notifyClient.CloseIdleConnections()
	dispatcher, err := notifications.NewDispatcher(&cfg.Notifications, notifyClient, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	orchestrator := monitoring.New(store, provider, fetcher, dispatcher, metricsCollector, monitoring.Options{
		MinFailingCameras:   cfg.Monitoring.MinFailingCameras,
		MaxConcurrentChecks: cfg.Monitoring.MaxConcurrentChecks,
		RunOnStart:          cfg.Monitoring.RunOnStartEnabled(),
		ShutdownGrace:       cfg.Monitoring.ShutdownGrace,
		ScreenshotDir:       filepath.Join(cfg.Monitoring.DataDir, "screenshots"),
		DefaultSettings:     defaultSettings(cfg),
	})

	webServer := web.NewServer(cfg, store, orchestrator, dispatcher, metricsCollector)
	if err := webServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}
	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logrus.WithField("signal", sig).Info("Received shutdown signal")

	// checks get the grace period, then the web server a few seconds
	orchestrator.Stop(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return webServer.Stop(shutdownCtx)
}

// seedStore mirrors configured hosts into the store and persists the
// configured settings on first start.
func seedStore(ctx context.Context, store database.Store, cfg *config.Config) error {
	hosts := make([]database.Host, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		hosts = append(hosts, database.Host{
			ID:      h.ID,
			Name:    h.Name,
			Address: h.Address,
			Enabled: h.IsEnabled(),
		})
	}
	result, err := store.SyncHosts(ctx, hosts)
	if err != nil {
		return fmt.Errorf("failed to sync hosts: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"removed": result.Removed,
	}).Info("Hosts synchronized from configuration")

	defaults := defaultSettings(cfg)
	settings, err := store.EnsureSettings(ctx, &defaults)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"check_interval":     settings.CheckInterval.Duration(),
		"confirmation_delay": settings.ConfirmationDelay.Duration(),
		"timezone":           settings.Timezone,
	}).Info("Runtime settings loaded")
	return nil
}

func defaultSettings(cfg *config.Config) database.Settings {
	return database.Settings{
		CheckInterval:     database.Duration(cfg.Monitoring.CheckInterval),
		ConfirmationDelay: database.Duration(cfg.Monitoring.ConfirmationDelay),
		Timezone:          cfg.Monitoring.Timezone,
		MentionName:       cfg.Notifications.MentionName,
		MentionUserIDs:    cfg.Notifications.MentionUserIDs,
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
