package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	ReadinessStrategyFixed       = "fixed"
	ReadinessStrategyExponential = "exponential"
)

type ReadinessConfig struct {
	Endpoints      []string      `koanf:"endpoints" mapstructure:"endpoints" yaml:"endpoints"`
	Strategy       string        `koanf:"strategy" mapstructure:"strategy" yaml:"strategy"`
	Interval       time.Duration `koanf:"interval" mapstructure:"interval" yaml:"interval"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff" yaml:"max_backoff"`
	MaxDuration    time.Duration `koanf:"max_duration" mapstructure:"max_duration" yaml:"max_duration"`
	DialTimeout    time.Duration `koanf:"dial_timeout" mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

type TenancyConfig struct {
	MaxProjectsPerAccount int    `koanf:"max_projects_per_account" mapstructure:"max_projects_per_account" yaml:"max_projects_per_account"`
	BootstrapFile         string `koanf:"bootstrap_file" mapstructure:"bootstrap_file" yaml:"bootstrap_file"`
}

type ProvisioningConfig struct {
	LockTimeout time.Duration `koanf:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

type HTTPConfig struct {
	Address string `koanf:"address" mapstructure:"address" yaml:"address"`
}

type PersistenceConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver" yaml:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn" yaml:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug" yaml:"debug"`
}

type PostgresStoreConfig struct {
	Enabled    bool   `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
	URL        string `koanf:"url" mapstructure:"url" yaml:"url"`
	PublicHost string `koanf:"public_host" mapstructure:"public_host" yaml:"public_host"`
	PublicPort int    `koanf:"public_port" mapstructure:"public_port" yaml:"public_port"`
}

type RedisStoreConfig struct {
	Enabled  bool   `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Addr     string `koanf:"addr" mapstructure:"addr" yaml:"addr"`
	Password string `koanf:"password" mapstructure:"password" yaml:"password"`
	DB       int    `koanf:"db" mapstructure:"db" yaml:"db"`
}

type S3StoreConfig struct {
	Enabled         bool   `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Region          string `koanf:"region" mapstructure:"region" yaml:"region"`
	Endpoint        string `koanf:"endpoint" mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id" mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key" mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style" mapstructure:"use_path_style" yaml:"use_path_style"`
	BucketPrefix    string `koanf:"bucket_prefix" mapstructure:"bucket_prefix" yaml:"bucket_prefix"`
}

type MemoryStoreConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
}

type StoresConfig struct {
	Postgres PostgresStoreConfig `koanf:"postgres" mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisStoreConfig    `koanf:"redis" mapstructure:"redis" yaml:"redis"`
	S3       S3StoreConfig       `koanf:"s3" mapstructure:"s3" yaml:"s3"`
	Memory   MemoryStoreConfig   `koanf:"memory" mapstructure:"memory" yaml:"memory"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	Readiness    ReadinessConfig    `koanf:"readiness" mapstructure:"readiness" yaml:"readiness"`
	Tenancy      TenancyConfig      `koanf:"tenancy" mapstructure:"tenancy" yaml:"tenancy"`
	Provisioning ProvisioningConfig `koanf:"provisioning" mapstructure:"provisioning" yaml:"provisioning"`
	HTTP         HTTPConfig         `koanf:"http" mapstructure:"http" yaml:"http"`
	Persistence  PersistenceConfig  `koanf:"persistence" mapstructure:"persistence" yaml:"persistence"`
	Stores       StoresConfig       `koanf:"stores" mapstructure:"stores" yaml:"stores"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "provisioner",
		Readiness: ReadinessConfig{
			Endpoints:      []string{},
			Strategy:       ReadinessStrategyFixed,
			Interval:       time.Second,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			MaxDuration:    0,
			DialTimeout:    2 * time.Second,
		},
		Tenancy: TenancyConfig{
			MaxProjectsPerAccount: DefaultMaxProjectsPerAccount,
		},
		Provisioning: ProvisioningConfig{
			LockTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Address: ":8000",
		},
		Persistence: PersistenceConfig{
			Driver: "sqlite3",
			DSN:    "file:provisioner.db?cache=shared&_foreign_keys=on",
		},
		Stores: StoresConfig{
			Memory: MemoryStoreConfig{Enabled: true},
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Readiness.Strategy)) {
	case "", ReadinessStrategyFixed, ReadinessStrategyExponential:
	default:
		return fmt.Errorf("core: readiness.strategy %q is not supported", c.Readiness.Strategy)
	}
	if c.Readiness.Interval < 0 || c.Readiness.InitialBackoff < 0 || c.Readiness.MaxBackoff < 0 {
		return fmt.Errorf("core: readiness backoff durations must not be negative")
	}
	if c.Readiness.MaxDuration < 0 {
		return fmt.Errorf("core: readiness.max_duration must not be negative")
	}
	if c.Readiness.DialTimeout < 0 {
		return fmt.Errorf("core: readiness.dial_timeout must not be negative")
	}
	if c.Tenancy.MaxProjectsPerAccount < 0 {
		return fmt.Errorf("core: tenancy.max_projects_per_account must not be negative")
	}
	if c.Provisioning.LockTimeout < 0 {
		return fmt.Errorf("core: provisioning.lock_timeout must not be negative")
	}
	if c.Stores.Postgres.Enabled && strings.TrimSpace(c.Stores.Postgres.URL) == "" {
		return fmt.Errorf("core: stores.postgres.url is required when the postgres store is enabled")
	}
	if c.Stores.Redis.Enabled && strings.TrimSpace(c.Stores.Redis.Addr) == "" {
		return fmt.Errorf("core: stores.redis.addr is required when the redis store is enabled")
	}
	if c.Stores.S3.Enabled && strings.TrimSpace(c.Stores.S3.Region) == "" {
		return fmt.Errorf("core: stores.s3.region is required when the s3 store is enabled")
	}
	return nil
}
