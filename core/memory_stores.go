package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: map[string]Account{}}
}

func (s *MemoryAccountStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.Key]; exists {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountExists, account.Name)
	}
	account.Projects = append([]ProjectRef(nil), account.Projects...)
	s.accounts[account.Key] = account
	return cloneAccount(account), nil
}

func (s *MemoryAccountStore) GetAccount(_ context.Context, key string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[key]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *MemoryAccountStore) DeleteAccount(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[key]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, key)
	return nil
}

func (s *MemoryAccountStore) AddProject(_ context.Context, key string, project ProjectRef, maxProjects int) (ProjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[key]
	if !ok {
		return ProjectRef{}, ErrAccountNotFound
	}
	if _, exists := account.Project(project.Name); exists {
		return ProjectRef{}, fmt.Errorf("%w: %s", ErrProjectExists, project.Name)
	}
	if maxProjects > 0 && len(account.Projects) >= maxProjects {
		return ProjectRef{}, fmt.Errorf("%w: account owns %d of %d projects", ErrProjectLimitReached, len(account.Projects), maxProjects)
	}
	account.Projects = append(append([]ProjectRef(nil), account.Projects...), project)
	s.accounts[key] = account
	return project, nil
}

func (s *MemoryAccountStore) RemoveProject(_ context.Context, key string, projectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[key]
	if !ok {
		return ErrAccountNotFound
	}
	projects := make([]ProjectRef, 0, len(account.Projects))
	found := false
	for _, project := range account.Projects {
		if project.Name == projectName {
			found = true
			continue
		}
		projects = append(projects, project)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectName)
	}
	account.Projects = projects
	s.accounts[key] = account
	return nil
}

func (s *MemoryAccountStore) ProjectNameExists(_ context.Context, projectName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if _, ok := account.Project(projectName); ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryAccountStore) ListProjectAccountPairs(context.Context) ([]ProjectAccountPair, error) {
	s.mu.RLock()
	pairs := make([]ProjectAccountPair, 0)
	for _, account := range s.accounts {
		for _, project := range account.Projects {
			pairs = append(pairs, ProjectAccountPair{ProjectName: project.Name, AccountName: account.Name})
		}
	}
	s.mu.RUnlock()
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ProjectName == pairs[j].ProjectName {
			return pairs[i].AccountName < pairs[j].AccountName
		}
		return pairs[i].ProjectName < pairs[j].ProjectName
	})
	return pairs, nil
}

func cloneAccount(account Account) Account {
	account.Projects = append([]ProjectRef(nil), account.Projects...)
	return account
}

type MemoryLeaseStore struct {
	mu     sync.RWMutex
	leases map[string]ResourceLease
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{leases: map[string]ResourceLease{}}
}

func (s *MemoryLeaseStore) FindActive(_ context.Context, projectID string, storeType StoreType) (ResourceLease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lease := range s.leases {
		if lease.ProjectID == projectID && lease.StoreType == storeType && lease.Live() {
			return lease.Clone(), nil
		}
	}
	return ResourceLease{}, ErrLeaseNotFound
}

func (s *MemoryLeaseStore) Create(_ context.Context, lease ResourceLease) (ResourceLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.leases {
		if existing.ProjectID == lease.ProjectID && existing.StoreType == lease.StoreType && existing.Live() {
			return ResourceLease{}, fmt.Errorf("%w: live lease for %s", ErrLeaseBusy, lease.StoreType)
		}
	}
	if lease.ID == "" {
		lease.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lease.CreatedAt.IsZero() {
		lease.CreatedAt = now
	}
	if lease.UpdatedAt.IsZero() {
		lease.UpdatedAt = lease.CreatedAt
	}
	lease = lease.Clone()
	s.leases[lease.ID] = lease
	return lease.Clone(), nil
}

func (s *MemoryLeaseStore) Save(_ context.Context, lease ResourceLease) (ResourceLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leases[lease.ID]; !ok {
		return ResourceLease{}, ErrLeaseNotFound
	}
	lease = lease.Clone()
	s.leases[lease.ID] = lease
	return lease.Clone(), nil
}

func (s *MemoryLeaseStore) ListActive(_ context.Context, projectID string) ([]ResourceLease, error) {
	s.mu.RLock()
	leases := make([]ResourceLease, 0)
	for _, lease := range s.leases {
		if lease.ProjectID == projectID && lease.Live() {
			leases = append(leases, lease.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(leases, func(i, j int) bool { return leases[i].StoreType < leases[j].StoreType })
	return leases, nil
}

var (
	_ AccountStore = (*MemoryAccountStore)(nil)
	_ LeaseStore   = (*MemoryLeaseStore)(nil)
)
