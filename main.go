package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ekvall/kartklickare/bridge"
	"github.com/ekvall/kartklickare/config"
	"github.com/ekvall/kartklickare/history"
	"github.com/ekvall/kartklickare/logger"
	"github.com/ekvall/kartklickare/poller"
	"github.com/ekvall/kartklickare/presence"
	"github.com/ekvall/kartklickare/route"
	"github.com/ekvall/kartklickare/status"
	"github.com/ekvall/kartklickare/surface"
)

func main() {
	// Load configuration
	configPath, err := config.ResolveConfigPath()
	if err != nil {
		log.Fatalf("Failed to resolve config path: %+v", err)
	}
	if err := config.EnsureDefaultConfig(configPath); err != nil {
		log.Fatalf("Failed to write default configuration: %+v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %+v", err)
	}

	// Initialize logger
	if err := logger.Init(logger.GetLevelFromString(cfg.Logging.Level), logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		log.Fatalf("Failed to initialize logger: %+v", err)
	}

	if err := run(cfg, configPath); err != nil {
		logger.Error("Companion exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Presence history store, optional.
	var histStore *history.Store
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.Warn("History store unavailable, continuing without it", "error", err)
		} else {
			histStore = store
			defer histStore.Close()
			retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
			if pruned, err := histStore.Prune(ctx, retention); err != nil {
				logger.Warn("Failed to prune presence history", "error", err)
			} else if pruned > 0 {
				logger.Info("Pruned old presence history", "rows", pruned)
			}
		}
	}

	// Embedded browser window with a persistent signed-in profile.
	surf, err := surface.Launch(ctx, surface.Options{
		StartURL:          cfg.Surface.StartURL,
		DataDir:           cfg.Surface.DataDir,
		Width:             cfg.Surface.WindowWidth,
		Height:            cfg.Surface.WindowHeight,
		Headless:          cfg.Surface.Headless,
		NavigationTimeout: cfg.NavigationTimeout(),
	})
	if err != nil {
		return err
	}
	defer surf.Close()

	// Request correlation between host and page.
	pool := bridge.NewPool()
	invoker := bridge.NewInvoker(surf, pool, cfg.RequestTimeout())
	if err := surf.ExposeCompletion(invoker.Complete); err != nil {
		return err
	}

	session := presence.NewSession(presence.NewRichClient(cfg.Presence.ApplicationID))
	defer session.Close()

	var recorder poller.Recorder
	if histStore != nil {
		recorder = histStore
	}
	p := poller.New(surf, invoker, session, route.DefaultTable(), recorder, poller.Config{
		Interval:        cfg.PollInterval(),
		DebounceRetries: cfg.Poller.DebounceRetries,
		Endpoints: poller.Endpoints{
			LiveAPI:    cfg.Endpoints.LiveAPI,
			OfflineAPI: cfg.Endpoints.OfflineAPI,
			PlayerAPI:  cfg.Endpoints.PlayerAPI,
			MapAPI:     cfg.Endpoints.MapAPI,
		},
	})

	var statusServer *status.Server
	if cfg.Status.Enabled {
		var histSource status.HistorySource
		if histStore != nil {
			histSource = histStore
		}
		statusServer = status.NewServer(cfg, p, session, histSource)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("Status server error", "error", err)
			}
		}()
	}

	// Re-apply the log level when the config file changes on disk.
	go func() {
		err := config.Watch(ctx, configPath, func(updated *config.Config) {
			logger.SetDefaultLevel(logger.GetLevelFromString(updated.Logging.Level))
			logger.Info("Configuration reloaded", "log_level", updated.Logging.Level)
		})
		if err != nil {
			logger.Warn("Config watcher stopped", "error", err)
		}
	}()

	pollerErr := make(chan error, 1)
	go func() {
		pollerErr <- p.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-pollerErr:
		if err != nil && ctx.Err() == nil {
			runErr = err
		}
	}

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Status server shutdown failed", "error", err)
		}
	}
	return runErr
}
