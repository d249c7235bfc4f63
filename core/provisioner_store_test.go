package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-provisioning/backends/memory"
	"github.com/goliatone/go-provisioning/core"
)

// interruptedLeaseStore fails the first save that would mark a lease ready,
// cancelling the caller as if it gave up between allocation and save.
type interruptedLeaseStore struct {
	*core.MemoryLeaseStore
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *interruptedLeaseStore) Save(ctx context.Context, lease core.ResourceLease) (core.ResourceLease, error) {
	s.mu.Lock()
	cancel := s.cancel
	if lease.Status == core.LeaseStatusReady && cancel != nil {
		s.cancel = nil
	}
	s.mu.Unlock()
	if lease.Status == core.LeaseStatusReady && cancel != nil {
		cancel()
		return core.ResourceLease{}, ctx.Err()
	}
	return s.MemoryLeaseStore.Save(ctx, lease)
}

// flakyMemoryStore creates the namespace and then reports a failure, the way
// a store that loses the connection after creating a resource would.
type flakyMemoryStore struct {
	*memory.Store
	mu          sync.Mutex
	failNext    bool
	lastAdopted bool
}

func (s *flakyMemoryStore) Allocate(ctx context.Context, req core.AllocateRequest) (core.Allocation, error) {
	allocation, err := s.Store.Allocate(ctx, req)
	if err != nil {
		return allocation, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAdopted = allocation.Adopted
	if s.failNext {
		s.failNext = false
		return core.Allocation{}, errors.New("connection reset by peer")
	}
	return allocation, nil
}

func (s *flakyMemoryStore) adopted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAdopted
}

func newMemoryProvisioner(t *testing.T, client core.StoreClient, leases core.LeaseStore) *core.ResourceProvisioner {
	t.Helper()
	registry := core.NewStoreRegistry()
	if err := registry.Register(core.StoreTypeMemory, client); err != nil {
		t.Fatalf("register memory store: %v", err)
	}
	return core.NewResourceProvisioner(leases, registry)
}

func memoryProjectRef() core.ProjectRef {
	return core.ProjectRef{ID: "prj_proj-a", AccountKey: "k1tester00000001", Name: "proj-a"}
}

func TestProvision_AfterReleaseGetsNewMemoryNamespace(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	provisioner := newMemoryProvisioner(t, store, core.NewMemoryLeaseStore())
	project := memoryProjectRef()

	original, err := provisioner.Provision(ctx, project, core.StoreTypeMemory)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := provisioner.Deprovision(ctx, project, core.StoreTypeMemory); err != nil {
		t.Fatalf("deprovision: %v", err)
	}
	if len(store.Handles()) != 0 {
		t.Fatalf("expected namespace released, got %v", store.Handles())
	}

	fresh, err := provisioner.Provision(ctx, project, core.StoreTypeMemory)
	if err != nil {
		t.Fatalf("provision after release: %v", err)
	}
	if fresh.ID == original.ID {
		t.Fatalf("expected a fresh lease, got %q again", fresh.ID)
	}
	if fresh.Handle == original.Handle {
		t.Fatalf("expected a new handle after release, got %q again", fresh.Handle)
	}
	if handles := store.Handles(); len(handles) != 1 || handles[0] != fresh.Handle {
		t.Fatalf("expected only %q live, got %v", fresh.Handle, handles)
	}
}

func TestProvision_AdoptsNamespaceAllocatedBeforeInterruptedSave(t *testing.T) {
	store := memory.New()
	leases := &interruptedLeaseStore{MemoryLeaseStore: core.NewMemoryLeaseStore()}
	provisioner := newMemoryProvisioner(t, store, leases)
	project := memoryProjectRef()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leases.cancel = cancel
	if _, err := provisioner.Provision(ctx, project, core.StoreTypeMemory); err == nil {
		t.Fatalf("expected interrupted provision to fail")
	}
	stuck, err := leases.FindActive(context.Background(), project.ID, core.StoreTypeMemory)
	if err != nil {
		t.Fatalf("find lease: %v", err)
	}
	if stuck.Status != core.LeaseStatusProvisioning || stuck.Handle != "" {
		t.Fatalf("expected lease left provisioning without handle, got %#v", stuck)
	}
	handles := store.Handles()
	if len(handles) != 1 {
		t.Fatalf("expected the namespace created before the save, got %v", handles)
	}
	if err := store.Put(handles[0], "schema", "v1"); err != nil {
		t.Fatalf("put: %v", err)
	}

	resumed, err := provisioner.Provision(context.Background(), project, core.StoreTypeMemory)
	if err != nil {
		t.Fatalf("resume provision: %v", err)
	}
	if resumed.ID != stuck.ID || resumed.Status != core.LeaseStatusReady {
		t.Fatalf("expected stuck lease driven to ready, got %#v", resumed)
	}
	if resumed.Handle != handles[0] {
		t.Fatalf("expected adopted handle %q, got %q", handles[0], resumed.Handle)
	}
	if value, ok := store.Get(resumed.Handle, "schema"); !ok || value != "v1" {
		t.Fatalf("expected adopted namespace to keep its data")
	}
	if got := store.Handles(); len(got) != 1 {
		t.Fatalf("expected exactly one live namespace, got %v", got)
	}
}

func TestRetry_AdoptsNamespaceFromPartialAllocation(t *testing.T) {
	ctx := context.Background()
	store := &flakyMemoryStore{Store: memory.New(), failNext: true}
	provisioner := newMemoryProvisioner(t, store, core.NewMemoryLeaseStore())
	project := memoryProjectRef()

	failed, err := provisioner.Provision(ctx, project, core.StoreTypeMemory)
	if err == nil {
		t.Fatalf("expected partial allocation to fail")
	}
	if failed.Status != core.LeaseStatusFailed {
		t.Fatalf("expected failed lease, got %s", failed.Status)
	}
	if len(store.Handles()) != 1 {
		t.Fatalf("expected the partially allocated namespace, got %v", store.Handles())
	}

	retried, err := provisioner.Retry(ctx, project, core.StoreTypeMemory)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !store.adopted() {
		t.Fatalf("expected retry to adopt the existing namespace")
	}
	if retried.ID != failed.ID || retried.Status != core.LeaseStatusReady {
		t.Fatalf("expected failed lease retried to ready, got %#v", retried)
	}
	if handles := store.Handles(); len(handles) != 1 || handles[0] != retried.Handle {
		t.Fatalf("expected exactly one live namespace %q, got %v", retried.Handle, handles)
	}
}
