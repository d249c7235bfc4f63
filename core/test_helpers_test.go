package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

const (
	testAPIKey      = "k1tester00000001"
	otherTestAPIKey = "k2tester00000002"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// countingStoreClient is an in-memory StoreClient that counts calls and lets
// tests script failures. Like the real backends it names resources after the
// request and adopts a resource it already holds for the same project.
type countingStoreClient struct {
	mu          sync.Mutex
	allocations int
	releases    int
	live        map[string]string
	allocateFn  func(ctx context.Context, req AllocateRequest) (Allocation, error)
	releaseFn   func(ctx context.Context, handle string) error
	pingErr     error
}

func newCountingStoreClient() *countingStoreClient {
	return &countingStoreClient{live: map[string]string{}}
}

func (c *countingStoreClient) Allocate(ctx context.Context, req AllocateRequest) (Allocation, error) {
	c.mu.Lock()
	c.allocations++
	fn := c.allocateFn
	c.mu.Unlock()
	if fn != nil {
		if _, err := fn(ctx, req); err != nil {
			return Allocation{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	handle := countingHandle(req)
	owner, adopted := c.live[handle]
	if adopted && owner != req.ProjectID {
		return Allocation{}, fmt.Errorf("%w: %s", ErrStoreConflict, handle)
	}
	c.live[handle] = req.ProjectID
	return Allocation{
		Handle: handle,
		Credentials: map[string]string{
			CredentialUsername: req.ResourceName,
			CredentialPassword: "secret-" + req.ResourceName,
		},
		Adopted: adopted,
	}, nil
}

func (c *countingStoreClient) Release(ctx context.Context, handle string) error {
	c.mu.Lock()
	c.releases++
	fn := c.releaseFn
	c.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, handle); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[handle]; !ok {
		return ErrStoreNotFound
	}
	delete(c.live, handle)
	return nil
}

func (c *countingStoreClient) Ping(context.Context) error {
	return c.pingErr
}

func (c *countingStoreClient) allocationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocations
}

func (c *countingStoreClient) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

func countingHandle(req AllocateRequest) string {
	return string(req.StoreType) + "/" + req.ResourceName
}

func (c *countingStoreClient) liveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

func newTestProvisioner(t *testing.T, clients map[StoreType]StoreClient) (*ResourceProvisioner, *MemoryLeaseStore) {
	t.Helper()
	registry := NewStoreRegistry()
	for storeType, client := range clients {
		if err := registry.Register(storeType, client); err != nil {
			t.Fatalf("register %s: %v", storeType, err)
		}
	}
	leases := NewMemoryLeaseStore()
	return NewResourceProvisioner(leases, registry), leases
}

func testProjectRef(name string) ProjectRef {
	return ProjectRef{ID: "prj_" + name, AccountKey: testAPIKey, Name: name}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}
