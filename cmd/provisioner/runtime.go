package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	provisioning "github.com/goliatone/go-provisioning"
	"github.com/goliatone/go-provisioning/adapters/gocommand"
	"github.com/goliatone/go-provisioning/backends/memory"
	"github.com/goliatone/go-provisioning/backends/postgres"
	"github.com/goliatone/go-provisioning/backends/redis"
	"github.com/goliatone/go-provisioning/backends/s3"
	"github.com/goliatone/go-provisioning/core"
	promrecorder "github.com/goliatone/go-provisioning/metrics/prometheus"
	provisioningmigrations "github.com/goliatone/go-provisioning/migrations"
	"github.com/goliatone/go-provisioning/readiness"
	sqlstore "github.com/goliatone/go-provisioning/store/sql"
	httptransport "github.com/goliatone/go-provisioning/transport/http"
)

type persistenceConfig struct {
	cfg core.PersistenceConfig
}

func (c persistenceConfig) GetDebug() bool                { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string             { return c.cfg.Driver }
func (c persistenceConfig) GetServer() string             { return c.cfg.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-provisioning" }

// runtime owns everything the serve command opens, so it can be closed in
// reverse order.
type runtime struct {
	service *provisioning.Service
	facade  *provisioning.Facade
	server  *httptransport.Server
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func readinessPolicy(cfg core.ReadinessConfig) readiness.Policy {
	policy := readiness.Policy{
		MaxDuration: cfg.MaxDuration,
		DialTimeout: cfg.DialTimeout,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case core.ReadinessStrategyExponential:
		policy.Backoff = readiness.ExponentialBackoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff}
	default:
		policy.Backoff = readiness.FixedBackoff{Interval: cfg.Interval}
	}
	return policy
}

func openPersistence(ctx context.Context, cfg core.PersistenceConfig) (*persistence.Client, error) {
	dialectName, err := provisioningmigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	var (
		driver  string
		dialect schema.Dialect
	)
	switch dialectName {
	case provisioningmigrations.DialectPostgres:
		driver = "postgres"
		dialect = pgdialect.New()
	default:
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", driver, err)
	}
	if dialectName == provisioningmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{cfg: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence: new client: %w", err)
	}

	_, err = provisioningmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, provisioningmigrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return client, nil
}

// storeOptions connects every enabled backend and returns the service
// options registering them, plus closers for the ones holding connections.
func storeOptions(ctx context.Context, cfg core.StoresConfig, logger glog.Logger) ([]core.Option, []func(), error) {
	var (
		opts    []core.Option
		closers []func()
	)
	fail := func(err error) ([]core.Option, []func(), error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, nil, err
	}

	if cfg.Postgres.Enabled {
		store, err := postgres.Connect(ctx, postgres.Config{
			URL:        cfg.Postgres.URL,
			PublicHost: cfg.Postgres.PublicHost,
			PublicPort: cfg.Postgres.PublicPort,
		}, postgres.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store.Close)
		opts = append(opts, core.WithStoreClient(core.StoreTypeRelational, store))
	}
	if cfg.Redis.Enabled {
		store, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, redis.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = store.Close() })
		opts = append(opts, core.WithStoreClient(core.StoreTypeKeyValue, store))
	}
	if cfg.S3.Enabled {
		store, err := s3.Connect(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			BucketPrefix:    cfg.S3.BucketPrefix,
		}, s3.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		opts = append(opts, core.WithStoreClient(core.StoreTypeObject, store))
	}
	if cfg.Memory.Enabled {
		opts = append(opts, core.WithStoreClient(core.StoreTypeMemory, memory.New()))
	}
	return opts, closers, nil
}

type runtimeOptions struct {
	logger          glog.Logger
	adminToken      string
	accountCacheTTL time.Duration
}

func repositoryFactoryOptions(ttl time.Duration) ([]sqlstore.FactoryOption, error) {
	if ttl <= 0 {
		return nil, nil
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("account cache: %w", err)
	}
	return []sqlstore.FactoryOption{sqlstore.WithAccountCache(cacheService)}, nil
}

func buildRuntime(ctx context.Context, cfg core.Config, options runtimeOptions) (*runtime, error) {
	logger := options.logger
	if logger == nil {
		logger = glog.Nop()
	}
	rt := &runtime{}

	client, err := openPersistence(ctx, cfg.Persistence)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = client.Close() })

	factoryOpts, err := repositoryFactoryOptions(options.accountCacheTTL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	stores, closers, err := storeOptions(ctx, cfg.Stores, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closers...)

	recorder := promrecorder.New(promrecorder.WithNamespace(metricsNamespace(cfg.ServiceName)))
	serviceOpts := append([]core.Option{
		core.WithLogger(logger),
		core.WithLoggerProvider(glog.ProviderFromLogger(logger)),
		core.WithMetricsRecorder(recorder),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
	}, stores...)

	service, err := provisioning.NewService(cfg, serviceOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = service

	facade, err := provisioning.NewFacade(service)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.facade = facade

	dispatch := gocommand.NewRegistryAdapter(nil)
	if err := dispatch.RegisterFacade(facade); err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, dispatch.Unsubscribe)

	if path := strings.TrimSpace(cfg.Tenancy.BootstrapFile); path != "" {
		records, err := core.LoadBootstrapFile(path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		created, err := gocommand.Bootstrap(ctx, records)
		if err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info("tenant bootstrap applied", "records", len(records), "created", created)
	}

	server, err := httptransport.New(facade,
		httptransport.WithLogger(logger),
		httptransport.WithMetricsHandler(recorder.Handler()),
		httptransport.WithAdminToken(options.adminToken),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.server = server
	return rt, nil
}

// metricsNamespace turns the service name into a valid Prometheus prefix.
func metricsNamespace(serviceName string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(serviceName))
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "provisioner"
	}
	return name
}

// exitCode maps a run result onto the process exit status.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}
