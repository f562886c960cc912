package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storysift/storysift/app/adapters"
	"github.com/storysift/storysift/app/api"
	"github.com/storysift/storysift/app/cfg"
	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/dedup"
	"github.com/storysift/storysift/app/enrich"
	"github.com/storysift/storysift/app/extract"
	"github.com/storysift/storysift/app/search"
	"github.com/storysift/storysift/app/sink"
	"github.com/storysift/storysift/app/sources"
	"github.com/storysift/storysift/app/tasks"
)

func main() {
	config, err := cfg.Load()
	if err != nil {
		fatal("Failed to load configuration", err)
	}
	if config == nil {
		// Help was shown, exit gracefully
		return
	}

	if config.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting storysift", "version", config.Version)

	db, err := database.NewConnection(config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer db.Close()

	schemaVersion, applied, err := database.Migrate(db)
	if err != nil {
		fatal("Failed to migrate database", err)
	}
	slog.Info("Database ready", "schema_version", schemaVersion, "migrations_applied", applied)

	sourceRepo := database.NewSourceRepository(db)
	articleRepo := database.NewArticleRepository(db)
	fingerprintRepo := database.NewFingerprintRepository(db)

	registry := sources.NewRegistry(sourceRepo, sources.Options{
		BackoffBase: time.Duration(config.BackoffBase) * time.Second,
		BackoffMax:  time.Duration(config.BackoffMax) * time.Second,
		Jitter:      config.ScheduleJitter,
		MaxWeight:   config.WorkerCount,
	})

	configs, err := sources.LoadFile(config.SourcesFile)
	if err != nil {
		fatal("Failed to load sources file", err)
	}
	if err := registry.Load(configs); err != nil {
		fatal("Failed to register sources", err)
	}
	slog.Info("Sources registered", "total", len(configs))

	params := dedup.DefaultParams()
	params.ShingleSize = config.ShingleSize
	params.HashCount = config.HashCount
	params.Bands = config.DedupBands
	params.Rows = config.DedupRows
	params.Threshold = config.DedupThreshold
	params.MinShingles = config.MinShingles
	params.Window = time.Duration(config.DedupWindow) * time.Second
	params.BucketWidth = time.Duration(config.BucketWidth) * time.Second
	if err := params.Validate(); err != nil {
		fatal("Invalid deduplication parameters", err)
	}

	index, err := buildIndex(config, params, fingerprintRepo)
	if err != nil {
		fatal("Failed to build duplicate index", err)
	}
	detector := dedup.NewDetector(params, index)

	fetchTimeout := time.Duration(config.FetchTimeout) * time.Second
	policy := adapters.NewPolicyChecker(config.UserAgent, fetchTimeout)
	client := adapters.NewClient(policy, config.UserAgent, fetchTimeout, config.MaxBodySize)
	adapterRegistry := adapters.NewRegistry(
		adapters.NewFeedAdapter(client),
		adapters.NewPageAdapter(client),
		adapters.NewAPIAdapter(client),
	)

	extractor := extract.NewExtractor(extract.Options{
		MinBodyLength:     config.MinBodyLength,
		LanguageThreshold: config.LanguageThreshold,
		AllowedLanguages:  config.AllowedLanguages,
		ExtraBoilerplate:  config.ExtraBoilerplate,
	})

	var enricher enrich.Enricher = enrich.Noop{}
	if config.EnrichmentURL != "" {
		enricher = enrich.NewClient(config.EnrichmentURL, config.EnrichmentKey, time.Duration(config.EnrichmentTimeout)*time.Second)
		slog.Info("Enrichment enabled", "url", config.EnrichmentURL)
	}

	var indexer search.Indexer = search.Noop{}
	if config.SearchURL != "" {
		indexer = search.NewClient(config.SearchURL, config.SearchIndex, time.Duration(config.SearchTimeout)*time.Second)
		slog.Info("Search indexing enabled", "url", config.SearchURL, "index", config.SearchIndex)
	}

	articleSink := sink.NewSink(articleRepo, fingerprintRepo, indexer)

	scheduler := tasks.NewScheduler(registry, adapterRegistry, extractor, detector, enricher, articleSink, tasks.Options{
		Interval:     time.Duration(config.SchedulerInterval) * time.Second,
		WorkerCount:  config.WorkerCount,
		DrainTimeout: time.Duration(config.ShutdownTimeout) * time.Second,
	})
	scheduler.Start()
	slog.Info("Scheduler started", "workers", config.WorkerCount, "interval_seconds", config.SchedulerInterval)

	retention := cron.New()
	maxAge := time.Duration(config.RetentionMaxAge) * time.Second
	if _, err := retention.AddFunc(config.RetentionSchedule, func() {
		if err := scheduler.EnqueueTask(tasks.NewRetentionTask(index, fingerprintRepo, maxAge)); err != nil {
			slog.Warn("Failed to enqueue retention task", "error", err)
		}
	}); err != nil {
		fatal("Invalid retention schedule", err)
	}
	retention.Start()
	slog.Info("Retention sweep scheduled", "schedule", config.RetentionSchedule, "max_age", maxAge.String())

	reload := func() error {
		configs, err := sources.LoadFile(config.SourcesFile)
		if err != nil {
			return err
		}
		return registry.Load(configs)
	}

	watchCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()

	watcher := sources.NewWatcher(config.SourcesFile, func() {
		if err := reload(); err != nil {
			slog.Error("Failed to reload sources", "error", err)
			return
		}
		slog.Info("Sources reloaded", "path", config.SourcesFile)
	})
	go func() {
		if err := watcher.Run(watchCtx); err != nil {
			slog.Error("Sources watcher stopped", "error", err)
		}
	}()

	handler := api.NewHandler(registry, articleRepo, db, reload)
	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      api.NewServer(handler, config.APIAccessKey, config.Version),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server failed, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	<-retention.Stop().Done()
	stopWatcher()
	scheduler.Stop()

	slog.Info("Shutdown complete")
}

// buildIndex selects the duplicate index backend. With a Redis address the
// index is shared and survives restarts on its own; otherwise an in-memory
// index is rebuilt from the fingerprints persisted within the recency window.
func buildIndex(config *cfg.Cfg, params dedup.Params, fingerprints database.FingerprintRepository) (dedup.Index, error) {
	if config.RedisAddr != "" {
		index, err := dedup.NewRedisIndex(config.RedisAddr, params)
		if err != nil {
			return nil, err
		}
		slog.Info("Using shared Redis duplicate index", "addr", config.RedisAddr)
		return index, nil
	}

	index := dedup.NewMemoryIndex(params)

	since := time.Now().UTC().Add(-params.Window)
	rows, err := fingerprints.GetRecentFingerprints(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent fingerprints: %w", err)
	}

	entries := make([]dedup.Entry, 0, len(rows))
	for _, row := range rows {
		sketch, err := dedup.DecodeSketch(row.Sketch)
		if err != nil {
			slog.Warn("Skipping fingerprint with unreadable sketch", "fingerprint", row.ID, "error", err)
			continue
		}
		if len(sketch) != params.HashCount {
			slog.Warn("Skipping fingerprint built with different parameters", "fingerprint", row.ID, "positions", len(sketch))
			continue
		}
		entries = append(entries, dedup.Entry{
			ID:        row.ID,
			ArticleID: row.ArticleID,
			Sketch:    sketch,
			Bucket:    row.TimeBucket,
		})
	}

	if err := index.Restore(entries); err != nil {
		return nil, fmt.Errorf("failed to restore duplicate index: %w", err)
	}

	slog.Info("Restored in-memory duplicate index", "fingerprints", len(entries))
	return index, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
