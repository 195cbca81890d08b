package cmd

import (
	"context"
	"fmt"

	"site-sync/core/alert"
	"site-sync/core/config"
	"site-sync/core/database"
	"site-sync/core/gateway"
	"site-sync/core/lock"
	"site-sync/core/logger"
	"site-sync/core/reconcile"
	"site-sync/core/report"
	"site-sync/core/storage"
	"site-sync/core/tracing"
	"site-sync/feature/maintenance"
	"site-sync/feature/monitoring"
	"site-sync/feature/store"
	"site-sync/feature/sync"

	"go.uber.org/zap"
)

// application is everything a command needs, built from the configuration.
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	sync     *sync.Service
	archive  *report.Archive
	cache    *reconcile.SnapshotCache
	shutdown tracing.Shutdown
}

// platforms selects which remote APIs must be configured.
type platforms struct {
	monitoring  bool
	maintenance bool
}

// newApplication loads the configuration and wires the store, the platform
// clients and the sync service.
func newApplication(ctx context.Context, need platforms) (*application, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireCredentials(need.monitoring, need.maintenance); err != nil {
		return nil, err
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdown, err := tracing.Init(cfg.Tracing, nil, l)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(db, l)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}
	if missing, err := st.CheckSchema(ctx); err != nil {
		l.Warn("Schema check failed", zap.Error(err))
	} else if len(missing) > 0 {
		l.Warn("Store schema is missing columns", zap.Strings("missing", missing))
	}

	locker, err := lock.New(ctx, cfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("failed to create run lock: %w", err)
	}

	alerts, err := alert.New(cfg.Alert, l, gateway.WithLogger(l))
	if err != nil {
		return nil, err
	}

	var archive *report.Archive
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
			return nil, err
		}
		archive = report.NewArchive(client, cfg.Storage.Bucket, cfg.Sync.ReportPrefix, cfg.Sync.ReportKeep, l)
	}

	deps := sync.Deps{
		Store:   st,
		Locker:  locker,
		Alerts:  alerts,
		Archive: archive,
	}
	if need.monitoring {
		client := monitoring.NewClient(cfg.Monitoring, l, gateway.WithLogger(l))
		deps.Monitoring = monitoring.NewSource(client, l)
		deps.Gateways = append(deps.Gateways, client.Gateway())
	}
	if need.maintenance {
		client := maintenance.NewClient(cfg.Maintenance, l, gateway.WithLogger(l))
		deps.Maintenance = maintenance.NewSource(client, st, l)
		deps.MaintenanceMutator = maintenance.NewMutator(client, l)
		deps.SiteKeys = client
		deps.Gateways = append(deps.Gateways, client.Gateway())
	}

	return &application{
		cfg:      cfg,
		logger:   l,
		store:    st,
		sync:     sync.NewService(deps, cfg.Sync, l),
		archive:  archive,
		cache:    reconcile.NewSnapshotCache(cfg.Sync.CacheTTL),
		shutdown: shutdown,
	}, nil
}

// Close flushes spans and logs.
func (a *application) Close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("Failed to flush traces", zap.Error(err))
	}
	_ = a.logger.Sync()
}
