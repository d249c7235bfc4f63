package sqlstore

import "github.com/goliatone/go-provisioning/core"

var (
	_ core.AccountStore           = (*AccountStore)(nil)
	_ core.AccountStore           = (*CachedAccountStore)(nil)
	_ core.LeaseStore             = (*LeaseStore)(nil)
	_ core.StorePinger            = (*AccountStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
