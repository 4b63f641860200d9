package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/config"
	"github.com/ent0n29/calld/internal/execution"
	"github.com/ent0n29/calld/internal/httpapi"
	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/notify"
	"github.com/ent0n29/calld/internal/observability"
)

type BuildResult struct {
	Config     config.Config
	Logger     *slog.Logger
	API        *httpapi.Server
	Store      *calllog.Store
	Registry   *modules.Registry
	Dispatcher *execution.Dispatcher
	Hub        *notify.Hub
	Watcher    *notify.Watcher
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown. It waits for pending saves, stops
	// the watcher and closes the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	factories, err := calllog.Factories(calllog.Options{
		Backends:    cfg.StoreBackends,
		SQLitePath:  cfg.DBPath,
		DuckDBPath:  cfg.DuckDBPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("call store config: %w", err)
	}
	store, err := calllog.Open(ctx, logger, factories...)
	if err != nil {
		return nil, fmt.Errorf("call store init failed: %w", err)
	}
	metrics.SetStoreBackend(store.Backend())

	builtin := modules.NewBuiltinSource()
	builtin.Register(calllog.ModuleName, calllog.Module(store))
	registry := modules.NewRegistry(logger, builtin, modules.NewDirSource(cfg.ModulesDir))

	dispatcher := execution.NewDispatcher(registry, store, logger, metrics)
	hub := notify.NewHub(logger, metrics)

	watcher, err := notify.NewWatcher(cfg.ModulesDir, cfg.WatchDebounce, func(ctx context.Context) {
		metrics.IncModuleReload()
		if err := notify.PublishModules(ctx, registry, hub); err != nil {
			logger.Warn("module broadcast failed", "error", err)
		}
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	api := httpapi.New(cfg, dispatcher, store, registry, hub, metrics, logger)

	cleanup := func() error {
		dispatcher.Wait()
		watcher.Stop()
		if err := store.Close(); err != nil {
			return fmt.Errorf("close call store: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		Logger:     logger,
		API:        api,
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Hub:        hub,
		Watcher:    watcher,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}
