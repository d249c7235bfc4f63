package provisioning

import "github.com/goliatone/go-provisioning/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type StoreType = core.StoreType
type StoreClient = core.StoreClient
type AccountStore = core.AccountStore
type LeaseStore = core.LeaseStore
type MetricsRecorder = core.MetricsRecorder

type Account = core.Account
type ProjectRef = core.ProjectRef
type ResourceLease = core.ResourceLease
type BootstrapRecord = core.BootstrapRecord

type CreateAccountRequest = core.CreateAccountRequest

type ProjectRequest = core.ProjectRequest

type ResourceRequest = core.ResourceRequest

const (
	StoreTypeRelational = core.StoreTypeRelational
	StoreTypeKeyValue   = core.StoreTypeKeyValue
	StoreTypeObject     = core.StoreTypeObject
	StoreTypeMemory     = core.StoreTypeMemory
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithAccountStore      = core.WithAccountStore
	WithLeaseStore        = core.WithLeaseStore
	WithStoreRegistry     = core.WithStoreRegistry
	WithStoreClient       = core.WithStoreClient
	WithKeyedLocker       = core.WithKeyedLocker
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
