package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"churnguard/artifact"
	"churnguard/config"
	"churnguard/db"
	"churnguard/form"
	chttp "churnguard/http"
	"churnguard/logging"
	"churnguard/ml"
	"churnguard/monitoring"
	"churnguard/scheduler"
	"churnguard/scoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode(logger, run(cfg, logger)))
}

// exitCode logs a failed run and flushes the logger before the process exits.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("churnguard stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Load the bundle eagerly; a bad artifact stops startup
	store := artifact.NewStore(cfg.Artifact.Path, logger)
	if _, err := store.Bundle(); err != nil {
		return err
	}

	// 3. Initialize history
	history, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	// 4. Live feed and scoring service
	hub := monitoring.NewHub(logger)
	go hub.Run(ctx)
	metrics := monitoring.NewMetricsCollector(1000)

	scorer := scoring.NewService(store,
		scoring.WithCache(cfg.Cache.Size),
		scoring.WithRecorder(history),
		scoring.WithPublisher(hub),
		scoring.WithPublisher(metrics),
		scoring.WithLogger(logger))

	store.OnReload(func(b *ml.Bundle) {
		scorer.PurgeCache()
		hub.PublishBundle(b)
	})
	if cfg.Artifact.Watch {
		if err := store.Watch(ctx, cfg.Artifact.Debounce); err != nil {
			logger.Warn("bundle hot reload disabled", zap.Error(err))
		}
	}

	// 5. Retention job
	sched := scheduler.New(logger)
	if cfg.History.Enabled && cfg.History.Retention > 0 {
		if err := sched.AddRetention(ctx, cfg.History.PurgeCron, cfg.History.Retention, history); err != nil {
			return fmt.Errorf("schedule retention: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// 6. Start HTTP server
	policy, err := form.ParseWidgetPolicy(cfg.Form.Widget)
	if err != nil {
		return err
	}
	api := &chttp.API{
		Scorer:    scorer,
		Collector: form.NewCollector(policy),
		History:   history,
		Feed:      hub,
		Metrics:   metrics,
		Format:    chttp.NewFormatter(language.English, cfg.Decision.Currency),
		Branding: chttp.Branding{
			Title:    cfg.Branding.Title,
			Subtitle: cfg.Branding.Subtitle,
			Footer:   cfg.Branding.Footer,
			LogoPath: cfg.Branding.LogoPath,
		},
		Decision: chttp.DecisionSettings{
			ShowExpectedCost: cfg.Decision.ShowExpectedCost,
			DefaultCostFP:    cfg.Decision.DefaultCostFP,
			DefaultCostFN:    cfg.Decision.DefaultCostFN,
		},
		Logger: logger,
	}
	server := chttp.NewServer(chttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, api, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}

func openHistory(cfg *config.Config, logger *zap.Logger) (db.History, error) {
	if !cfg.History.Enabled {
		return db.NewNoopHistory(), nil
	}
	history, err := db.OpenSQLite(cfg.History.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	logger.Info("prediction history enabled", zap.String("path", cfg.History.SQLitePath))
	return history, nil
}
