package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// AccountStore persists accounts and their projects. Implementations must
// enforce key and (account, project name) uniqueness atomically.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, key string) (Account, error)
	DeleteAccount(ctx context.Context, key string) error
	AddProject(ctx context.Context, key string, project ProjectRef, maxProjects int) (ProjectRef, error)
	RemoveProject(ctx context.Context, key string, projectName string) error
	ProjectNameExists(ctx context.Context, projectName string) (bool, error)
	ListProjectAccountPairs(ctx context.Context) ([]ProjectAccountPair, error)
}

// LeaseStore persists resource leases. At most one lease that is not
// released may exist per (project, store type).
type LeaseStore interface {
	FindActive(ctx context.Context, projectID string, storeType StoreType) (ResourceLease, error)
	Create(ctx context.Context, lease ResourceLease) (ResourceLease, error)
	Save(ctx context.Context, lease ResourceLease) (ResourceLease, error)
	ListActive(ctx context.Context, projectID string) ([]ResourceLease, error)
}

type AllocateRequest struct {
	ProjectID    string
	ProjectName  string
	LeaseID      string
	StoreType    StoreType
	ResourceName string
}

type Allocation struct {
	Handle      string
	Credentials map[string]string
	Adopted     bool
}

// StoreClient allocates and releases resources in one backing store.
// Allocate must adopt a resource it previously created for the same
// ProjectID and fail with ErrStoreConflict for a resource owned by another.
// Release returns ErrStoreNotFound when the handle no longer exists.
type StoreClient interface {
	Allocate(ctx context.Context, req AllocateRequest) (Allocation, error)
	Release(ctx context.Context, handle string) error
}

type StorePinger interface {
	Ping(ctx context.Context) error
}

// HandleResolver derives the handle Allocate would produce for req, so a
// lease that lost its handle can still be released.
type HandleResolver interface {
	HandleFor(req AllocateRequest) string
}

type StoreRegistry interface {
	Register(storeType StoreType, client StoreClient) error
	Get(storeType StoreType) (StoreClient, bool)
	Types() []StoreType
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ProvisioningService interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetAccount(ctx context.Context, apiKey string) (Account, error)
	DeleteAccount(ctx context.Context, apiKey string) error
	CreateProject(ctx context.Context, req ProjectRequest) (ProjectRef, error)
	DeleteProject(ctx context.Context, req ProjectRequest) error
	ListProjects(ctx context.Context, apiKey string) ([]ProjectRef, error)
	ListProjectAccountPairs(ctx context.Context) ([]ProjectAccountPair, error)

	ProvisionResource(ctx context.Context, req ResourceRequest) (ResourceLease, error)
	RetryResource(ctx context.Context, req ResourceRequest) (ResourceLease, error)
	DeprovisionResource(ctx context.Context, req ResourceRequest) (ResourceLease, error)
	GetResource(ctx context.Context, req ResourceRequest) (ResourceLease, error)
	ListResources(ctx context.Context, req ProjectRequest) ([]ResourceLease, error)

	Status(ctx context.Context) StatusReport
}

type CreateAccountRequest struct {
	APIKey string
	Name   string
}

type ProjectRequest struct {
	APIKey      string
	ProjectName string
}

type ResourceRequest struct {
	APIKey      string
	ProjectName string
	StoreType   StoreType
}

type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

type ComponentStatus struct {
	Name   string
	Status HealthState
	Error  string
}

type StatusReport struct {
	Status     HealthState
	Components []ComponentStatus
}
