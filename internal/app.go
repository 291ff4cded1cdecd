// Package internal contains core application functionality
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"tally/internal/collectors"
	"tally/internal/config"
	"tally/internal/database"
	"tally/internal/events"
	"tally/internal/pkg/gazetteer"
	"tally/internal/pkg/geoip"
)

// Application wraps cartridge.Application with tally-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Queue     *events.Queue
	Registry  *collectors.Registry
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig builds the full ingestion pipeline and mounts the API on
// a cartridge application. The queue runs as a background worker so the
// server drains it before shutting down.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	geo := geoip.NewResolver(cfg.GeoDBPath, logger)
	cities := gazetteer.New(cfg.CitiesFilePath, logger)

	registry := collectors.NewRegistry(dbManager, geo, logger, cfg.OriginAllowlist())
	writer := events.NewWriter(dbManager, logger, cfg.WriteMaxRetries, cfg.GetWriteBackoff())
	queue := events.NewQueue(registry, writer, logger, cfg.ProcessingBatchSize, cfg.GetFlushInterval())

	serverCfg := cartridge.DefaultServerConfig()
	// Tracked pages call the ingestion API cross-origin, so the global
	// Sec-Fetch-Site check must accept cross-site browser requests.
	serverCfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin", "none"}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		ServerConfig: serverCfg,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountAppRoutes(srv, registry, queue, cities)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{queue},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Queue:       queue,
		Registry:    registry,
	}, nil
}
