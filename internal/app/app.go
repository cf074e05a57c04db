// Package app wires configuration into a running document cache. Both the
// HTTP server and the CLI build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/database/migration"
	"docsync/internal/delivery"
	"docsync/internal/lock"
	"docsync/internal/logger"
	"docsync/internal/mirror"
	"docsync/internal/model"
	"docsync/internal/repository"
	"docsync/internal/repository/sqldb"
	"docsync/internal/service"
	"docsync/internal/storage"
)

// SyncLockKey is the Redis key shared by every process syncing the same store.
const SyncLockKey = "docsync:sync-lock"

// App holds the wired components.
type App struct {
	Config   *config.AppConfig
	Log      *logger.Logger
	DB       *sql.DB
	Records  repository.DocumentRepository
	Docs     service.DocumentService
	Sync     *service.SyncEngine
	Registry *prometheus.Registry

	closers []io.Closer
}

// New builds every component. A backend that fails to initialise is logged
// and left out; the store keeps working on whatever remains.
func New(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var repo repository.DocumentRepository
	db, dialect, err := database.Open(cfg.Database)
	if err == nil {
		err = migration.EnsureMigrated(ctx, db, dialect, log)
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		log.Error("record_store_unavailable", errors.Join(service.ErrBackendUnavailable, err), map[string]any{"driver": cfg.Database.Driver})
	} else {
		a.DB = db
		a.closers = append(a.closers, db)
		repo = sqldb.NewDocumentStore(db, dialect)
		a.Records = repo
	}

	var store storage.Storage
	if cfg.MinIO.Endpoint == "" {
		log.Info("blob_store_disabled", nil)
	} else if store, err = storage.NewMinIO(ctx, cfg.MinIO); err != nil {
		log.Error("blob_store_unavailable", errors.Join(service.ErrBackendUnavailable, err), map[string]any{"endpoint": cfg.MinIO.Endpoint})
		store = nil
	}

	namer := model.FileNamer{Prefix: cfg.FileNamePrefix}
	a.Docs = service.NewDocumentService(store, repo,
		service.WithMirror(mirror.Probe(cfg.Mirror.Dir, log)),
		service.WithFileNamer(namer),
		service.WithLogger(log),
	)

	deliverer := delivery.NewClient(delivery.Options{
		Endpoint:        cfg.Delivery.Endpoint,
		ObserveResponse: cfg.Delivery.ObserveResponse,
		Timeout:         time.Duration(cfg.Delivery.TimeoutSec) * time.Second,
		Namer:           namer,
	})
	if cfg.Delivery.Endpoint == "" {
		log.Warn("delivery_endpoint_missing", delivery.ErrNoEndpoint, nil)
	}

	metrics, err := service.NewSyncMetrics(a.Registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Sync = service.NewSyncEngine(a.Docs, deliverer,
		service.WithGuard(a.guard()),
		service.WithSyncMetrics(metrics),
		service.WithSyncLogger(log),
	)
	return a, nil
}

// guard is process-local, extended across processes when Redis is configured.
func (a *App) guard() lock.Guard {
	local := lock.NewLocal()
	if a.Config.Redis.Addr == "" {
		return local
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, rc)
	ttl := time.Duration(a.Config.Sync.LockTTLSec) * time.Second
	return lock.Chain{local, lock.NewRedis(rc, SyncLockKey, ttl)}
}

// Close releases every opened resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
