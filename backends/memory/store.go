package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-provisioning/core"
)

const handlePrefix = "memory/"

// Store is an in-process backing store. Resources are named namespaces
// owned by a project ID.
type Store struct {
	mu        sync.Mutex
	resources map[string]resource
	storeType core.StoreType
}

type resource struct {
	owner string
	data  map[string]string
}

func New() *Store {
	return &Store{
		resources: map[string]resource{},
		storeType: core.StoreTypeMemory,
	}
}

func (s *Store) HandleFor(req core.AllocateRequest) string {
	return handlePrefix + req.ResourceName
}

func (s *Store) Allocate(ctx context.Context, req core.AllocateRequest) (core.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return core.Allocation{}, err
	}
	if req.ResourceName == "" || req.ProjectID == "" {
		return core.Allocation{}, fmt.Errorf("memory: resource name and project id are required")
	}
	handle := s.HandleFor(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	adopted := false
	if existing, ok := s.resources[handle]; ok {
		if existing.owner != req.ProjectID {
			return core.Allocation{}, fmt.Errorf("%w: memory namespace %q", core.ErrStoreConflict, req.ResourceName)
		}
		adopted = true
	} else {
		s.resources[handle] = resource{owner: req.ProjectID, data: map[string]string{}}
	}
	return core.Allocation{
		Handle: handle,
		Credentials: map[string]string{
			core.CredentialEngine:    string(s.storeType),
			core.CredentialNamespace: req.ResourceName,
		},
		Adopted: adopted,
	}, nil
}

func (s *Store) Release(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[handle]; !ok {
		return fmt.Errorf("%w: %s", core.ErrStoreNotFound, handle)
	}
	delete(s.resources, handle)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Put writes a value into an allocated namespace.
func (s *Store) Put(handle, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[handle]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrStoreNotFound, handle)
	}
	res.data[key] = value
	return nil
}

func (s *Store) Get(handle, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[handle]
	if !ok {
		return "", false
	}
	value, ok := res.data[key]
	return value, ok
}

// Handles lists the live namespaces in lexical order.
func (s *Store) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.resources))
	for handle := range s.resources {
		out = append(out, handle)
	}
	sort.Strings(out)
	return out
}
