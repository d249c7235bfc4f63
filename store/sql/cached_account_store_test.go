package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-provisioning/core"
)

type stubAccountStore struct {
	mu       sync.Mutex
	account  core.Account
	getCalls int
	getErr   error
	addErr   error
}

func (s *stubAccountStore) CreateAccount(_ context.Context, account core.Account) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
	return account, nil
}

func (s *stubAccountStore) GetAccount(context.Context, string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Account{}, s.getErr
	}
	out := s.account
	out.Projects = append([]core.ProjectRef(nil), s.account.Projects...)
	return out, nil
}

func (s *stubAccountStore) DeleteAccount(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = core.Account{}
	return nil
}

func (s *stubAccountStore) AddProject(_ context.Context, _ string, project core.ProjectRef, _ int) (core.ProjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return core.ProjectRef{}, s.addErr
	}
	s.account.Projects = append(s.account.Projects, project)
	return project, nil
}

func (s *stubAccountStore) RemoveProject(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account.Projects = nil
	return nil
}

func (s *stubAccountStore) ProjectNameExists(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubAccountStore) ListProjectAccountPairs(context.Context) ([]core.ProjectAccountPair, error) {
	return nil, nil
}

func (s *stubAccountStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

func TestCachedAccountStore_GetAccount_MissFetchThenHit(t *testing.T) {
	base := &stubAccountStore{account: core.Account{Key: "k1cache000000001", Name: "cached"}}
	store, err := NewCachedAccountStore(base, newTestAccountCacheService(t))
	if err != nil {
		t.Fatalf("new cached account store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.GetAccount(ctx, "k1cache000000001"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.calls())
	}
	account, err := store.GetAccount(ctx, "k1cache000000001")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.calls())
	}
	if account.Name != "cached" {
		t.Fatalf("expected cached account, got %#v", account)
	}
}

func TestCachedAccountStore_AddProject_InvalidatesCachedKey(t *testing.T) {
	base := &stubAccountStore{account: core.Account{Key: "k1cache000000002", Name: "cached"}}
	store, err := NewCachedAccountStore(base, newTestAccountCacheService(t))
	if err != nil {
		t.Fatalf("new cached account store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.GetAccount(ctx, "k1cache000000002"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := store.AddProject(ctx, "k1cache000000002", core.ProjectRef{ID: "p1", Name: "proj-a"}, 0); err != nil {
		t.Fatalf("add project through cached store: %v", err)
	}
	account, err := store.GetAccount(ctx, "k1cache000000002")
	if err != nil {
		t.Fatalf("get after add: %v", err)
	}
	if base.calls() != 2 {
		t.Fatalf("expected invalidated key to refetch, base get calls=%d", base.calls())
	}
	if len(account.Projects) != 1 || account.Projects[0].Name != "proj-a" {
		t.Fatalf("expected fresh projects after invalidation, got %#v", account.Projects)
	}
}

func TestCachedAccountStore_FailedWriteKeepsCache(t *testing.T) {
	base := &stubAccountStore{
		account: core.Account{Key: "k1cache000000003", Name: "cached"},
		addErr:  core.ErrProjectLimitReached,
	}
	store, err := NewCachedAccountStore(base, newTestAccountCacheService(t))
	if err != nil {
		t.Fatalf("new cached account store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.GetAccount(ctx, "k1cache000000003"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := store.AddProject(ctx, "k1cache000000003", core.ProjectRef{Name: "proj-a"}, 1); !errors.Is(err, core.ErrProjectLimitReached) {
		t.Fatalf("expected base error, got %v", err)
	}
	if _, err := store.GetAccount(ctx, "k1cache000000003"); err != nil {
		t.Fatalf("get after failed add: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected cache kept after failed write, base get calls=%d", base.calls())
	}
}

func TestNewCachedAccountStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedAccountStore(nil, newTestAccountCacheService(t)); err == nil {
		t.Fatalf("expected missing base store error")
	}
	if _, err := NewCachedAccountStore(&stubAccountStore{}, nil); err == nil {
		t.Fatalf("expected missing cache service error")
	}
}

func TestAccountCacheKey_EscapesKey(t *testing.T) {
	if got := AccountCacheKey(" a/b "); got != "go-provisioning::account::v1::a%2Fb" {
		t.Fatalf("unexpected cache key %q", got)
	}
}

func newTestAccountCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
