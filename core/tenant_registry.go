package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxProjectsPerAccount = 3

// TenantRegistry maps API keys to accounts and accounts to projects.
type TenantRegistry struct {
	store       AccountStore
	maxProjects int
	now         func() time.Time
	newID       func() string
}

type TenantRegistryOption func(*TenantRegistry)

// WithMaxProjects caps the number of projects per account. Zero disables the cap.
func WithMaxProjects(max int) TenantRegistryOption {
	return func(r *TenantRegistry) {
		if max >= 0 {
			r.maxProjects = max
		}
	}
}

func WithTenantClock(now func() time.Time) TenantRegistryOption {
	return func(r *TenantRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewTenantRegistry(store AccountStore, opts ...TenantRegistryOption) *TenantRegistry {
	if store == nil {
		store = NewMemoryAccountStore()
	}
	registry := &TenantRegistry{
		store:       store,
		maxProjects: DefaultMaxProjectsPerAccount,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry
}

func (r *TenantRegistry) CreateAccount(ctx context.Context, key string, name string) (Account, error) {
	key = strings.TrimSpace(key)
	if err := ValidateAPIKey(key); err != nil {
		return Account{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidAccountName)
	}
	return r.store.CreateAccount(ctx, Account{
		Key:       key,
		Name:      name,
		Projects:  []ProjectRef{},
		CreatedAt: r.now(),
	})
}

func (r *TenantRegistry) Lookup(ctx context.Context, key string) (Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Account{}, fmt.Errorf("%w: empty key", ErrAccountNotFound)
	}
	return r.store.GetAccount(ctx, key)
}

func (r *TenantRegistry) AddProject(ctx context.Context, key string, projectName string) (ProjectRef, error) {
	if err := ValidateProjectName(projectName); err != nil {
		return ProjectRef{}, err
	}
	key = strings.TrimSpace(key)
	return r.store.AddProject(ctx, key, ProjectRef{
		ID:         r.newID(),
		AccountKey: key,
		Name:       projectName,
		CreatedAt:  r.now(),
	}, r.maxProjects)
}

func (r *TenantRegistry) RemoveProject(ctx context.Context, key string, projectName string) error {
	return r.store.RemoveProject(ctx, strings.TrimSpace(key), projectName)
}

func (r *TenantRegistry) GetProject(ctx context.Context, key string, projectName string) (ProjectRef, error) {
	account, err := r.Lookup(ctx, key)
	if err != nil {
		return ProjectRef{}, err
	}
	project, ok := account.Project(projectName)
	if !ok {
		return ProjectRef{}, fmt.Errorf("%w: %s", ErrProjectNotFound, projectName)
	}
	return project, nil
}

func (r *TenantRegistry) ListProjects(ctx context.Context, key string) ([]ProjectRef, error) {
	account, err := r.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	projects := append([]ProjectRef(nil), account.Projects...)
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func (r *TenantRegistry) ProjectNameExists(ctx context.Context, projectName string) (bool, error) {
	return r.store.ProjectNameExists(ctx, projectName)
}

func (r *TenantRegistry) ListProjectAccountPairs(ctx context.Context) ([]ProjectAccountPair, error) {
	return r.store.ListProjectAccountPairs(ctx)
}

func (r *TenantRegistry) DeleteAccount(ctx context.Context, key string) error {
	return r.store.DeleteAccount(ctx, strings.TrimSpace(key))
}

// Bootstrap creates every account in records that does not exist yet.
func (r *TenantRegistry) Bootstrap(ctx context.Context, records []BootstrapRecord) (int, error) {
	created := 0
	for _, record := range records {
		if _, err := r.CreateAccount(ctx, record.Key, record.Name); err != nil {
			if IsConflict(err) {
				continue
			}
			return created, fmt.Errorf("core: bootstrap account %q: %w", record.Name, err)
		}
		created++
	}
	return created, nil
}
