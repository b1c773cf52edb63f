package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/config"
	"github.com/revops/pipeline-monitor/repositories/postgres"
	"github.com/revops/pipeline-monitor/services/alerts"
	"github.com/revops/pipeline-monitor/services/connectors"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/services/fetcher"
	"github.com/revops/pipeline-monitor/services/mockdata"
	"github.com/revops/pipeline-monitor/services/platform"
)

const remoteConfigTimeout = 10 * time.Second

// Dependencies holds everything the HTTP surface and the CLI need.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Cache  *fetcher.MemoryStore
	DB     *postgres.DB

	// Fallback log
	SessionStore fallback.SessionStore
	Monitor      *fallback.Monitor

	// Sources
	Platform     *platform.Client
	Local        *mockdata.Source
	Orchestrator *fallback.Orchestrator

	Alerter    *alerts.Alerter
	Connectors *connectors.Registry

	leveldb *fallback.LevelDBStore
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Cache:  fetcher.NewMemoryStore(cfg.Fetch.CacheSize),
		Local:  mockdata.New(time.Now),
	}

	if err := deps.initSessionStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	deps.Monitor = fallback.NewMonitor(fallback.MonitorConfig{
		Capacity:  cfg.Monitor.Capacity,
		Window:    cfg.Monitor.Window,
		Threshold: cfg.Monitor.Threshold,
		Persist:   cfg.IsDevelopment() || cfg.Monitor.Store != config.StoreMemory,
	}, deps.SessionStore, logger.Named("fallback"))

	if err := deps.initPlatform(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize platform client: %w", err)
	}

	deps.Orchestrator = fallback.NewOrchestrator(fallback.OrchestratorConfig{
		PrimaryEnabled: cfg.Platform.Enabled,
		Development:    cfg.IsDevelopment(),
		Retry: fetcher.RetryPolicy{
			Limit:     cfg.Platform.ViewRetryLimit,
			BaseDelay: cfg.Fetch.BaseDelay,
			MaxDelay:  cfg.Fetch.MaxDelay,
		},
	}, deps.Platform, deps.Local, deps.Monitor, logger.Named("orchestrator"))

	deps.Alerter = alerts.NewAlerter(alerts.Config{
		WebhookURL: cfg.Alerts.SlackWebhookURL,
		Channel:    cfg.Alerts.Channel,
		Timeout:    cfg.Alerts.Timeout,
	}, logger.Named("alerts"))
	if !deps.Alerter.Enabled() {
		logger.Warn("slack webhook not configured, escalation alerts disabled")
	}

	if err := deps.initConnectors(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to register connectors: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("session_id", deps.Monitor.SessionID()),
		zap.String("monitor_store", cfg.Monitor.Store),
		zap.Bool("platform_ready", deps.Platform.Ready()),
	)
	return deps, nil
}

func (d *Dependencies) initSessionStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Monitor.Store {
	case config.StoreLevelDB:
		store, err := fallback.OpenLevelDBStore(cfg.Monitor.LevelDBPath)
		if err != nil {
			return err
		}
		d.leveldb = store
		d.SessionStore = store
	case config.StorePostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return err
		}
		d.DB = db
		d.SessionStore = postgres.NewFallbackEventStore(db, d.Logger)
	default:
		d.SessionStore = fallback.NewMemorySessionStore()
	}
	d.Logger.Info("session store initialized", zap.String("kind", cfg.Monitor.Store))
	return nil
}

// initPlatform builds the client from local credentials, or from the
// dashboard backend when only its URL is known. A failed remote lookup
// leaves the client not ready.
func (d *Dependencies) initPlatform(ctx context.Context, cfg *config.Config) error {
	pc := platform.Config{
		BaseURL:  cfg.Platform.BaseURL,
		TenantID: cfg.Platform.TenantID,
		AgentID:  cfg.Platform.AgentID,
		JWT:      cfg.Platform.JWT,
		Timeout:  cfg.Platform.Timeout,
	}

	if !cfg.Platform.Configured() && cfg.Platform.ConfigURL != "" {
		remote, err := d.loadRemoteConfig(ctx, cfg)
		if err != nil {
			d.Logger.Warn("platform configuration not available", zap.Error(err))
		} else {
			remote.Timeout = cfg.Platform.Timeout
			pc = remote
		}
	}

	client, err := platform.NewClient(pc, d.Logger.Named("platform"))
	if err != nil {
		return err
	}
	d.Platform = client
	if !client.Ready() {
		d.Logger.Warn("platform client not ready, views will be served from local data")
	}
	return nil
}

func (d *Dependencies) loadRemoteConfig(ctx context.Context, cfg *config.Config) (platform.Config, error) {
	opts := fetcher.Options{
		TTL:        cfg.Fetch.CacheTTL,
		RetryLimit: cfg.Fetch.RetryLimit,
		BaseDelay:  cfg.Fetch.BaseDelay,
		MaxDelay:   cfg.Fetch.MaxDelay,
	}
	loader, err := platform.NewConfigLoader(cfg.Platform.ConfigURL, d.Cache, opts, d.Logger.Named("platform_config"))
	if err != nil {
		return platform.Config{}, err
	}
	defer loader.Close()

	ctx, cancel := context.WithTimeout(ctx, remoteConfigTimeout)
	defer cancel()
	return loader.Load(ctx)
}

func (d *Dependencies) initConnectors(cfg *config.Config) error {
	d.Connectors = connectors.NewRegistry(d.Cache, cfg.Fetch.HealthTTL, d.Logger.Named("connectors"))

	var ping func(ctx context.Context) error
	if d.DB != nil {
		ping = d.DB.HealthCheck
	}
	for _, c := range []connectors.Connector{
		connectors.Platform(d.Platform, cfg.Platform.Enabled),
		connectors.Local(d.Local),
		connectors.Alerts(d.Alerter),
		connectors.SessionStore(cfg.Monitor.Store, ping),
	} {
		if err := d.Connectors.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Connectors != nil {
		d.Connectors.Close()
	}

	if d.leveldb != nil {
		if err := d.leveldb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close leveldb: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
