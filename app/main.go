package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/feed-relay/app/api"
	"github.com/lysyi3m/feed-relay/app/cfg"
	"github.com/lysyi3m/feed-relay/app/crawler"
	"github.com/lysyi3m/feed-relay/app/database"
	"github.com/lysyi3m/feed-relay/app/dedupe"
	"github.com/lysyi3m/feed-relay/app/feed"
	"github.com/lysyi3m/feed-relay/app/publish"
	"github.com/lysyi3m/feed-relay/app/tasks"
	"github.com/lysyi3m/feed-relay/app/telemetry"
	"github.com/lysyi3m/feed-relay/app/transform"
)

func main() {
	config, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if config == nil {
		return
	}

	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Feed Relay", "version", config.Version)

	configCache := feed.NewConfigCache(config.SourcesDir)
	if err := configCache.Run(); err != nil {
		fatal("Failed to load source configurations", err)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount(), "dir", config.SourcesDir)

	limits := dedupe.Limits{MaxEntries: config.DedupeMaxEntries, KeepTrailing: config.DedupeKeepTrailing}

	var stores dedupe.Factory
	switch config.DedupeBackend {
	case cfg.DedupeBackendSQLite:
		db, err := database.Open(config.DBPath)
		if err != nil {
			fatal("Failed to open database", err)
		}
		defer db.Close()
		stores = dedupe.NewSQLFactory(database.NewSeenRepository(db), limits)
	default:
		stores = dedupe.NewFileFactory(config.DataDir, limits)
	}
	slog.Info("Dedupe store ready", "backend", config.DedupeBackend)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sink := telemetry.Multi{telemetry.NewMetricsSink(registry)}
	if config.MixpanelToken != "" {
		sink = append(sink, telemetry.NewMixpanelSink(config.MixpanelURL, config.MixpanelToken, config.TelemetryTimeout))
	} else {
		slog.Warn("Mixpanel telemetry disabled (MIXPANEL_TOKEN not set)")
	}

	ingestor := feed.NewIngestor(&http.Client{}, config.UserAgent)

	transformer := transform.NewTransformer(
		transform.NewAssistantBackend(config.AssistantURL, config.AssistantAPIKey, config.AssistantID, config.TransformTimeout),
		config.Languages, config.PollInterval, config.TransformTimeout,
	)

	publisher := publish.NewPublisher(
		publish.NewWordPressBackend(config.PublishURL, config.PublishUser, config.PublishPassword, config.UserAgent, config.PublishTimeout),
		publish.Options{
			Languages:         config.Languages,
			Status:            config.PublishStatus,
			AuthorID:          config.PublishAuthorID,
			DefaultCategoryID: config.DefaultCategoryID,
			Retries:           config.PublishRetries,
			RetryDelay:        config.PublishRetryDelay,
			CallTimeout:       config.PublishTimeout,
		},
	)

	triggers, err := tasks.NewCronTriggerFactory(config.CronSchedule, config.Location)
	if err != nil {
		fatal("Invalid cron schedule", err)
	}

	scheduler := tasks.NewScheduler(triggers,
		tasks.WithMetrics(tasks.NewMetrics(registry)),
		tasks.WithTaskTimeout(config.TaskTimeout),
	)

	sources := configCache.GetConfigs()
	crawlerTasks := make([]*tasks.Task, 0, len(sources))
	for _, source := range sources {
		c := crawler.New(source, ingestor, stores(source.Name), transformer, publisher, sink, config.TransformConcurrency)
		crawlerTasks = append(crawlerTasks, c.Task())
	}

	catalog, err := tasks.NewCatalog(crawlerTasks...)
	if err != nil {
		fatal("Failed to build crawler catalog", err)
	}
	controller := tasks.NewController(scheduler, catalog)

	for _, source := range configCache.GetEnabledConfigs() {
		controller.Start(source.Name)
	}
	slog.Info("Scheduler configured", "schedule", config.CronSchedule, "timezone", config.Timezone,
		"crawlers", len(crawlerTasks), "active", len(scheduler.Tasks()), "next_run", scheduler.Next())

	handler := api.NewHandler(controller, configCache, registry, config.Version)
	server := api.NewServer(handler, config.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Close()
	slog.Info("Feed Relay shutdown complete")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
