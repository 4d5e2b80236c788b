// Package app wires configuration into the fetcher, egress selector, relay
// pool and web API, and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"statscrape/internal/egress"
	"statscrape/internal/fetch"
	"statscrape/internal/service/web"
	"statscrape/internal/shared/config"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
	"statscrape/relaypool"
	"statscrape/relaypool/scraper"
	"statscrape/relaypool/storage"
	"statscrape/relaypool/validator"
)

// App is the composition root shared by every command.
type App struct {
	cfg       *types.Config
	configDir string

	Fetcher *fetch.Fetcher
	Pool    *relaypool.Manager

	hub       *web.Hub
	server    interface{ Shutdown(context.Context) error }
	waitGroup sync.WaitGroup
	stopOnce  sync.Once
}

// New builds the application from cfg. Relative file names in cfg resolve
// against configDir.
func New(cfg *types.Config, configDir string) (*App, error) {
	a := &App{cfg: cfg, configDir: configDir}

	// Relay list pages are always fetched directly; routing them through the
	// pool they feed would make an empty pool unrecoverable.
	sourceFetcher := fetch.New(cfg.FetchConf, egress.DirectOnly{})

	poolCfg := cfg.RelayPoolConf
	st := storage.NewFileStorage(a.path(poolCfg.DataFile))
	v := validator.NewValidator(
		time.Duration(poolCfg.ValidationTimeoutSeconds)*time.Second,
		poolCfg.ValidationConcurrency,
		poolCfg.ValidationTarget,
	)
	a.Pool = relaypool.NewManager(poolCfg, st, v)

	sources, err := config.LoadSources(a.path(poolCfg.SourcesFile))
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		a.Pool.AddScraper(scraper.NewTableScraper(src, sourceFetcher))
	}

	relays, err := config.LoadRelays(a.path(cfg.EgressConf.RelaysFile))
	if err != nil {
		return nil, err
	}
	sel, err := egress.New(cfg.EgressConf, relays, a.Pool)
	if err != nil {
		return nil, err
	}
	a.Fetcher = fetch.New(cfg.FetchConf, sel)

	l := logger.WithComponent("App")
	l.Info().
		Str("egress_mode", cfg.EgressConf.Mode).
		Int("static_relays", len(relays)).
		Int("relay_sources", len(sources)).
		Msg("Application initialized.")
	return a, nil
}

// path resolves name against the config directory. Empty stays empty.
func (a *App) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.configDir, name)
}

// NeedsPool reports whether fetches depend on the relay pool being loaded.
func (a *App) NeedsPool() bool {
	return a.cfg.EgressConf.Mode == types.EgressHealth
}

// Serve runs the relay pool manager, the websocket hub and the web API
// until ctx is done, then stops them.
func (a *App) Serve(ctx context.Context) error {
	l := logger.WithComponent("App")
	l.Info().Msg("Starting server...")

	a.hub = web.NewHub()
	go a.hub.Run()

	a.Pool.OnChange(func() {
		a.hub.BroadcastPoolUpdate(web.PoolSummary{
			Timestamp: time.Now(),
			Total:     len(a.Pool.AllRelays()),
			Healthy:   len(a.Pool.HealthyRelays()),
		})
	})
	a.Pool.Start()

	router := web.NewRouter(a.cfg.WebConf, web.NewHandler(a.Fetcher, a.Pool), a.hub)
	srv, err := web.StartServer(&a.waitGroup, a.cfg.WebConf, router)
	if err != nil {
		a.Stop()
		return fmt.Errorf("web api: %w", err)
	}
	if srv != nil {
		a.server = srv
	}

	<-ctx.Done()
	l.Info().Msg("Shutdown requested.")
	a.Stop()
	return nil
}

// Stop gracefully shuts down whatever Serve started. It is safe to call
// more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Shutdown(ctx); err != nil {
				l := logger.WithComponent("App")
				l.Warn().Err(err).Msg("Web server shutdown failed.")
			}
		}
		a.Pool.Stop()
		if a.hub != nil {
			a.hub.Stop()
		}
		a.waitGroup.Wait()
		l := logger.WithComponent("App")
		l.Info().Msg("Server stopped.")
	})
}
