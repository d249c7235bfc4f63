package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ResourceProvisioner drives resource leases through their lifecycle. Every
// mutation for a (project, store type) pair runs under that pair's lock, so
// an allocation always finishes before a teardown of the same key starts.
type ResourceProvisioner struct {
	leases      LeaseStore
	stores      StoreRegistry
	locker      *KeyedLocker
	lockTimeout time.Duration
	logger      Logger
	now         func() time.Time
}

type ProvisionerOption func(*ResourceProvisioner)

func WithProvisionerLogger(logger Logger) ProvisionerOption {
	return func(p *ResourceProvisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithProvisionerLocker(locker *KeyedLocker) ProvisionerOption {
	return func(p *ResourceProvisioner) {
		if locker != nil {
			p.locker = locker
		}
	}
}

// WithLockTimeout bounds how long an operation waits for its key. Zero waits
// as long as the caller's context allows.
func WithLockTimeout(timeout time.Duration) ProvisionerOption {
	return func(p *ResourceProvisioner) {
		if timeout >= 0 {
			p.lockTimeout = timeout
		}
	}
}

func WithProvisionerClock(now func() time.Time) ProvisionerOption {
	return func(p *ResourceProvisioner) {
		if now != nil {
			p.now = now
		}
	}
}

func NewResourceProvisioner(leases LeaseStore, stores StoreRegistry, opts ...ProvisionerOption) *ResourceProvisioner {
	if leases == nil {
		leases = NewMemoryLeaseStore()
	}
	if stores == nil {
		stores = NewStoreRegistry()
	}
	provisioner := &ResourceProvisioner{
		leases: leases,
		stores: stores,
		locker: NewKeyedLocker(),
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provisioner)
		}
	}
	return provisioner
}

// Provision returns the ready lease for project and storeType, allocating one
// when none is live. Leases left in requested, provisioning or failed are
// driven again through the store's allocate-or-adopt path.
func (p *ResourceProvisioner) Provision(ctx context.Context, project ProjectRef, storeType StoreType) (ResourceLease, error) {
	client, err := p.client(storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	unlock, err := p.lock(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	defer unlock()

	lease, found, err := p.findActive(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	if !found {
		lease, err = p.leases.Create(ctx, ResourceLease{
			ProjectID:   project.ID,
			StoreType:   storeType,
			Status:      LeaseStatusRequested,
			Credentials: map[string]string{},
			CreatedAt:   p.now(),
			UpdatedAt:   p.now(),
		})
		if err != nil {
			return ResourceLease{}, err
		}
		return p.allocate(ctx, client, project, lease)
	}

	switch lease.Status {
	case LeaseStatusReady:
		return lease, nil
	case LeaseStatusDeprovisioning:
		return lease, fmt.Errorf("%w: %s for project %s", ErrLeaseBusy, storeType, project.Name)
	default:
		return p.allocate(ctx, client, project, lease)
	}
}

// Retry re-drives a failed lease. Any other state is a conflict.
func (p *ResourceProvisioner) Retry(ctx context.Context, project ProjectRef, storeType StoreType) (ResourceLease, error) {
	client, err := p.client(storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	unlock, err := p.lock(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	defer unlock()

	lease, found, err := p.findActive(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	if !found {
		return ResourceLease{}, fmt.Errorf("%w: %s for project %s", ErrLeaseNotFound, storeType, project.Name)
	}
	if lease.Status != LeaseStatusFailed {
		return lease, fmt.Errorf("%w: %s is %s", ErrLeaseNotFailed, storeType, lease.Status)
	}
	return p.allocate(ctx, client, project, lease)
}

// Deprovision releases the live lease for project and storeType. A resource
// the store no longer knows about counts as released.
func (p *ResourceProvisioner) Deprovision(ctx context.Context, project ProjectRef, storeType StoreType) (ResourceLease, error) {
	client, err := p.client(storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	unlock, err := p.lock(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	defer unlock()

	lease, found, err := p.findActive(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	if !found {
		return ResourceLease{}, fmt.Errorf("%w: %s for project %s", ErrLeaseNotFound, storeType, project.Name)
	}

	if err := lease.TransitionTo(LeaseStatusDeprovisioning, lease.LastError, p.now()); err != nil {
		return lease, err
	}
	if lease, err = p.leases.Save(ctx, lease); err != nil {
		return lease, err
	}

	handle := lease.Handle
	if handle == "" {
		if resolver, ok := client.(HandleResolver); ok {
			handle = resolver.HandleFor(allocateRequest(project, lease))
		}
	}
	if handle == "" {
		p.logger.Warn("releasing lease without handle",
			"lease_id", lease.ID,
			"project", project.Name,
			"store_type", string(storeType),
		)
	} else if releaseErr := client.Release(ctx, handle); releaseErr != nil && !errors.Is(releaseErr, ErrStoreNotFound) {
		releaseErr = ClassifyStoreError(releaseErr)
		if ctx.Err() != nil {
			return lease, releaseErr
		}
		lease.LastError = releaseErr.Error()
		lease.UpdatedAt = p.now()
		if saved, saveErr := p.leases.Save(ctx, lease); saveErr == nil {
			lease = saved
		}
		return lease, releaseErr
	}

	if err := lease.TransitionTo(LeaseStatusReleased, "", p.now()); err != nil {
		return lease, err
	}
	lease.Credentials = map[string]string{}
	return p.leases.Save(ctx, lease)
}

func (p *ResourceProvisioner) Get(ctx context.Context, project ProjectRef, storeType StoreType) (ResourceLease, error) {
	lease, found, err := p.findActive(ctx, project.ID, storeType)
	if err != nil {
		return ResourceLease{}, err
	}
	if !found {
		return ResourceLease{}, fmt.Errorf("%w: %s for project %s", ErrLeaseNotFound, storeType, project.Name)
	}
	return lease, nil
}

func (p *ResourceProvisioner) List(ctx context.Context, project ProjectRef) ([]ResourceLease, error) {
	return p.leases.ListActive(ctx, project.ID)
}

// DeprovisionAll releases every live lease of project independently and
// reports the store types that could not be released.
func (p *ResourceProvisioner) DeprovisionAll(ctx context.Context, project ProjectRef) error {
	leases, err := p.leases.ListActive(ctx, project.ID)
	if err != nil {
		return err
	}
	failed := make([]string, 0)
	errs := make([]error, 0)
	for _, lease := range leases {
		if _, err := p.Deprovision(ctx, project, lease.StoreType); err != nil {
			if errors.Is(err, ErrLeaseNotFound) {
				continue
			}
			failed = append(failed, string(lease.StoreType))
			errs = append(errs, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrProjectHasResources, strings.Join(failed, ", "), errors.Join(errs...))
}

func (p *ResourceProvisioner) allocate(ctx context.Context, client StoreClient, project ProjectRef, lease ResourceLease) (ResourceLease, error) {
	if lease.Status == LeaseStatusRequested || lease.Status == LeaseStatusFailed {
		if err := lease.TransitionTo(LeaseStatusProvisioning, "", p.now()); err != nil {
			return lease, err
		}
	}
	lease.Attempts++
	saved, err := p.leases.Save(ctx, lease)
	if err != nil {
		return lease, err
	}
	lease = saved

	allocation, err := client.Allocate(ctx, allocateRequest(project, lease))
	if err != nil {
		err = ClassifyStoreError(err)
		if ctx.Err() != nil {
			return lease, err
		}
		if transitionErr := lease.TransitionTo(LeaseStatusFailed, err.Error(), p.now()); transitionErr != nil {
			return lease, transitionErr
		}
		if saved, saveErr := p.leases.Save(ctx, lease); saveErr == nil {
			lease = saved
		}
		p.logger.Warn("resource allocation failed",
			"lease_id", lease.ID,
			"project", project.Name,
			"store_type", string(lease.StoreType),
			"attempts", lease.Attempts,
			"error", err.Error(),
		)
		return lease, err
	}

	lease.Handle = allocation.Handle
	lease.Credentials = copyStringMap(allocation.Credentials)
	if err := lease.TransitionTo(LeaseStatusReady, "", p.now()); err != nil {
		return lease, err
	}
	saved, err = p.leases.Save(ctx, lease)
	if err != nil {
		return lease, err
	}
	p.logger.Info("resource ready",
		"lease_id", saved.ID,
		"project", project.Name,
		"store_type", string(saved.StoreType),
		"adopted", allocation.Adopted,
	)
	return saved, nil
}

func (p *ResourceProvisioner) findActive(ctx context.Context, projectID string, storeType StoreType) (ResourceLease, bool, error) {
	lease, err := p.leases.FindActive(ctx, projectID, storeType)
	if err != nil {
		if errors.Is(err, ErrLeaseNotFound) {
			return ResourceLease{}, false, nil
		}
		return ResourceLease{}, false, err
	}
	return lease, true, nil
}

func (p *ResourceProvisioner) client(storeType StoreType) (StoreClient, error) {
	if err := storeType.Validate(); err != nil {
		return nil, err
	}
	client, ok := p.stores.Get(storeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotRegistered, storeType)
	}
	return client, nil
}

func (p *ResourceProvisioner) lock(ctx context.Context, projectID string, storeType StoreType) (func(), error) {
	waitCtx := ctx
	if p.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.lockTimeout)
		defer cancel()
	}
	unlock, err := p.locker.Lock(waitCtx, leaseKey(projectID, storeType))
	if err != nil {
		return nil, fmt.Errorf("core: waiting for %s lease lock: %w", storeType, err)
	}
	return unlock, nil
}

func allocateRequest(project ProjectRef, lease ResourceLease) AllocateRequest {
	return AllocateRequest{
		ProjectID:    project.ID,
		ProjectName:  project.Name,
		LeaseID:      lease.ID,
		StoreType:    lease.StoreType,
		ResourceName: project.ResourceName(lease.ID),
	}
}

func leaseKey(projectID string, storeType StoreType) string {
	return projectID + "/" + string(storeType)
}
