package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider exposes ready-built persistence for the service.
type StoreProvider interface {
	AccountStore() AccountStore
	LeaseStore() LeaseStore
}

// RepositoryStoreFactory builds a StoreProvider from a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	accountStore      AccountStore
	leaseStore        LeaseStore
	storeRegistry     StoreRegistry
	storeClients      map[StoreType]StoreClient
	locker            *KeyedLocker
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithAccountStore(store AccountStore) Option {
	return func(b *serviceBuilder) {
		b.accountStore = store
	}
}

func WithLeaseStore(store LeaseStore) Option {
	return func(b *serviceBuilder) {
		b.leaseStore = store
	}
}

func WithStoreRegistry(registry StoreRegistry) Option {
	return func(b *serviceBuilder) {
		b.storeRegistry = registry
	}
}

// WithStoreClient registers client for storeType on the service's registry.
func WithStoreClient(storeType StoreType, client StoreClient) Option {
	return func(b *serviceBuilder) {
		if b.storeClients == nil {
			b.storeClients = map[StoreType]StoreClient{}
		}
		b.storeClients[storeType] = client
	}
}

func WithKeyedLocker(locker *KeyedLocker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("provisioning", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return provisioningErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw configuration map.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](normalizeRawDurations(raw),
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap renders cfg as an options layer. Unless includeZero is set
// only fields that differ from their zero value are emitted, so an empty
// layer never masks a lower one.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	readiness := map[string]any{}
	putSlice(readiness, "endpoints", cfg.Readiness.Endpoints, includeZero)
	putString(readiness, "strategy", cfg.Readiness.Strategy, includeZero)
	putDuration(readiness, "interval", cfg.Readiness.Interval, includeZero)
	putDuration(readiness, "initial_backoff", cfg.Readiness.InitialBackoff, includeZero)
	putDuration(readiness, "max_backoff", cfg.Readiness.MaxBackoff, includeZero)
	putDuration(readiness, "max_duration", cfg.Readiness.MaxDuration, includeZero)
	putDuration(readiness, "dial_timeout", cfg.Readiness.DialTimeout, includeZero)
	putSection(layer, "readiness", readiness)

	tenancy := map[string]any{}
	if includeZero || cfg.Tenancy.MaxProjectsPerAccount != 0 {
		tenancy["max_projects_per_account"] = cfg.Tenancy.MaxProjectsPerAccount
	}
	putString(tenancy, "bootstrap_file", cfg.Tenancy.BootstrapFile, includeZero)
	putSection(layer, "tenancy", tenancy)

	provisioning := map[string]any{}
	putDuration(provisioning, "lock_timeout", cfg.Provisioning.LockTimeout, includeZero)
	putSection(layer, "provisioning", provisioning)

	httpSection := map[string]any{}
	putString(httpSection, "address", cfg.HTTP.Address, includeZero)
	putSection(layer, "http", httpSection)

	persistence := map[string]any{}
	putString(persistence, "driver", cfg.Persistence.Driver, includeZero)
	putString(persistence, "dsn", cfg.Persistence.DSN, includeZero)
	putBool(persistence, "debug", cfg.Persistence.Debug, includeZero)
	putSection(layer, "persistence", persistence)

	stores := map[string]any{}
	postgres := map[string]any{}
	putBool(postgres, "enabled", cfg.Stores.Postgres.Enabled, includeZero)
	putString(postgres, "url", cfg.Stores.Postgres.URL, includeZero)
	putString(postgres, "public_host", cfg.Stores.Postgres.PublicHost, includeZero)
	if includeZero || cfg.Stores.Postgres.PublicPort != 0 {
		postgres["public_port"] = cfg.Stores.Postgres.PublicPort
	}
	putSection(stores, "postgres", postgres)

	redis := map[string]any{}
	putBool(redis, "enabled", cfg.Stores.Redis.Enabled, includeZero)
	putString(redis, "addr", cfg.Stores.Redis.Addr, includeZero)
	putString(redis, "password", cfg.Stores.Redis.Password, includeZero)
	if includeZero || cfg.Stores.Redis.DB != 0 {
		redis["db"] = cfg.Stores.Redis.DB
	}
	putSection(stores, "redis", redis)

	s3 := map[string]any{}
	putBool(s3, "enabled", cfg.Stores.S3.Enabled, includeZero)
	putString(s3, "region", cfg.Stores.S3.Region, includeZero)
	putString(s3, "endpoint", cfg.Stores.S3.Endpoint, includeZero)
	putString(s3, "access_key_id", cfg.Stores.S3.AccessKeyID, includeZero)
	putString(s3, "secret_access_key", cfg.Stores.S3.SecretAccessKey, includeZero)
	putBool(s3, "use_path_style", cfg.Stores.S3.UsePathStyle, includeZero)
	putString(s3, "bucket_prefix", cfg.Stores.S3.BucketPrefix, includeZero)
	putSection(stores, "s3", s3)

	memory := map[string]any{}
	putBool(memory, "enabled", cfg.Stores.Memory.Enabled, includeZero)
	putSection(stores, "memory", memory)
	putSection(layer, "stores", stores)
	return layer
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putBool(section map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		section[key] = value
	}
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putSlice(section map[string]any, key string, value []string, includeZero bool) {
	if includeZero || len(value) > 0 {
		section[key] = append([]string(nil), value...)
	}
}

func putSection(parent map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		parent[key] = section
	}
}

// normalizeRawDurations converts duration strings such as "5s" found in raw
// config maps into time.Duration values before decoding.
func normalizeRawDurations(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case map[string]any:
			out[key] = normalizeRawDurations(typed)
		case string:
			if isDurationKey(key) {
				if parsed, err := time.ParseDuration(strings.TrimSpace(typed)); err == nil {
					out[key] = parsed
					continue
				}
			}
			out[key] = typed
		default:
			out[key] = value
		}
	}
	return out
}

func isDurationKey(key string) bool {
	switch key {
	case "interval", "initial_backoff", "max_backoff", "max_duration", "dial_timeout", "lock_timeout":
		return true
	}
	return false
}
