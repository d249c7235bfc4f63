package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-provisioning/core"
)

const accountCacheKeyPrefix = "go-provisioning::account::v1"

// CachedAccountStore serves account lookups from a cache and invalidates the
// entry on every write for that key.
type CachedAccountStore struct {
	base  core.AccountStore
	cache repositorycache.CacheService
}

func NewCachedAccountStore(base core.AccountStore, cacheService repositorycache.CacheService) (*CachedAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account cache service is required")
	}
	return &CachedAccountStore{base: base, cache: cacheService}, nil
}

// AccountCacheKey returns go-provisioning::account::v1::<api_key> with the
// key URL-path escaped.
func AccountCacheKey(key string) string {
	return accountCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(key))
}

func (s *CachedAccountStore) CreateAccount(ctx context.Context, account core.Account) (core.Account, error) {
	created, err := s.base.CreateAccount(ctx, account)
	if err != nil {
		return core.Account{}, err
	}
	if err := s.invalidate(ctx, account.Key); err != nil {
		return core.Account{}, err
	}
	return created, nil
}

func (s *CachedAccountStore) GetAccount(ctx context.Context, key string) (core.Account, error) {
	account, err := repositorycache.GetOrFetch(ctx, s.cache, AccountCacheKey(key), func(ctx context.Context) (core.Account, error) {
		return s.base.GetAccount(ctx, key)
	})
	if err != nil {
		return core.Account{}, err
	}
	account.Projects = append([]core.ProjectRef(nil), account.Projects...)
	return account, nil
}

func (s *CachedAccountStore) DeleteAccount(ctx context.Context, key string) error {
	if err := s.base.DeleteAccount(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedAccountStore) AddProject(ctx context.Context, key string, project core.ProjectRef, maxProjects int) (core.ProjectRef, error) {
	created, err := s.base.AddProject(ctx, key, project, maxProjects)
	if err != nil {
		return core.ProjectRef{}, err
	}
	if err := s.invalidate(ctx, key); err != nil {
		return core.ProjectRef{}, err
	}
	return created, nil
}

func (s *CachedAccountStore) RemoveProject(ctx context.Context, key string, projectName string) error {
	if err := s.base.RemoveProject(ctx, key, projectName); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedAccountStore) ProjectNameExists(ctx context.Context, projectName string) (bool, error) {
	return s.base.ProjectNameExists(ctx, projectName)
}

func (s *CachedAccountStore) ListProjectAccountPairs(ctx context.Context) ([]core.ProjectAccountPair, error) {
	return s.base.ListProjectAccountPairs(ctx)
}

func (s *CachedAccountStore) Ping(ctx context.Context) error {
	if pinger, ok := s.base.(core.StorePinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (s *CachedAccountStore) invalidate(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, AccountCacheKey(key))
}
