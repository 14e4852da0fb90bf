package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rentscout/server/config"
	"rentscout/server/internal/api"
	"rentscout/server/internal/database"
	"rentscout/server/internal/fetch"
	"rentscout/server/internal/scheduler"
	"rentscout/server/internal/scraping"
	"rentscout/server/internal/snapshot"
)

// Exit codes for RUN_ONCE mode
const (
	exitOK       = 0
	exitFailed   = 1
	exitAllEmpty = 2
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	regions, err := config.LoadRegions(cfg.Run.RegionsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load regions")
	}
	logger.WithFields(logrus.Fields{
		"regions":  len(regions),
		"workers":  cfg.Run.Workers,
		"renderer": cfg.Fetch.Renderer,
		"driver":   cfg.Database.Driver,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	coordinator := scraping.NewCoordinator(newSessionFactory(cfg, logger), nil, cfg.Run.Workers, scraping.PacingFromConfig(cfg), logger)
	events := &scraping.EventCounter{}
	coordinator.SetObserver(scraping.MultiObserver{scraping.LogObserver{Logger: logger}, events})
	writer := snapshot.NewWriter(cfg.Run.SnapshotPath, cfg.Run.GeoJSONPath, logger)
	pipeline := scraping.NewPipeline(coordinator, store, writer, cfg, regions, logger)

	if cfg.Run.Once {
		os.Exit(runOnce(ctx, pipeline, store, logger))
	}

	sched := scheduler.NewScheduler(func(ctx context.Context) error {
		_, err := pipeline.Run(ctx)
		return err
	}, time.Duration(cfg.Run.IntervalHours)*time.Hour, cfg.Run.OnStartup, logger)
	sched.Start()

	handler := api.NewHandler(store, sched, coordinator.Boxes(), logger).WithEventStats(events)
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	sched.Stop()
}

func runOnce(ctx context.Context, pipeline *scraping.Pipeline, store database.Store, logger *logrus.Logger) int {
	defer store.Close()

	report, err := pipeline.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Run finished with errors")
	}
	for _, r := range report.Regions {
		logger.WithFields(logrus.Fields{
			"region":         r.Region,
			"attempted":      r.Attempted,
			"succeeded":      r.Succeeded,
			"failed":         r.Failed,
			"store_failures": r.StoreFailures,
			"session_lost":   r.SessionLost,
		}).Info("Region summary")
	}

	switch {
	case report.AllEmpty:
		return exitAllEmpty
	case err != nil:
		return exitFailed
	default:
		return exitOK
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := database.NewPostgresStore(ctx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Running database migrations...")
		if err := store.RunMigrations(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		logger.Infof("Using database at: %s", cfg.Database.Path)
		db, err := database.NewDatabase(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Running database migrations...")
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
}

// newSessionFactory opens one renderer per region so a crashed browser only
// costs that region.
func newSessionFactory(cfg *config.Config, logger *logrus.Logger) fetch.SessionFactory {
	opts := fetch.DefaultSessionOptions()
	opts.MaxRetries = cfg.Fetch.MaxRetries
	opts.RequestsPerSecond = cfg.Fetch.RequestsPerSecond

	return func(ctx context.Context) (*fetch.Session, error) {
		var renderer fetch.PageRenderer
		switch cfg.Fetch.Renderer {
		case "http":
			renderer = fetch.NewHTTPRenderer(cfg.Fetch.UserAgents, cfg.Fetch.PageTimeout)
		default:
			chrome, err := fetch.NewChromeRenderer(ctx, fetch.ChromeOptions{
				Headless:   cfg.Fetch.Headless,
				UserAgents: cfg.Fetch.UserAgents,
				Timeout:    cfg.Fetch.PageTimeout,
			}, logger)
			if err != nil {
				return nil, err
			}
			renderer = chrome
		}
		return fetch.NewSession(renderer, opts, logger), nil
	}
}
