package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-provisioning/core"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:provisioning_accounts,alias:pa"`

	ID        string    `bun:"id,pk"`
	APIKey    string    `bun:"api_key,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type projectRecord struct {
	bun.BaseModel `bun:"table:provisioning_projects,alias:pp"`

	ID         string    `bun:"id,pk"`
	AccountID  string    `bun:"account_id,notnull"`
	AccountKey string    `bun:"account_key,notnull"`
	Name       string    `bun:"name,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type leaseRecord struct {
	bun.BaseModel `bun:"table:provisioning_leases,alias:pl"`

	ID          string            `bun:"id,pk"`
	ProjectID   string            `bun:"project_id,notnull"`
	StoreType   string            `bun:"store_type,notnull"`
	Handle      string            `bun:"handle,notnull"`
	Credentials map[string]string `bun:"credentials,type:jsonb,notnull"`
	Status      string            `bun:"status,notnull"`
	LastError   string            `bun:"last_error,notnull"`
	Attempts    int               `bun:"attempts,notnull"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type projectAccountRow struct {
	ProjectName string `bun:"project_name"`
	AccountName string `bun:"account_name"`
}

func newAccountRecord(id string, account core.Account, now time.Time) *accountRecord {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &accountRecord{
		ID:        id,
		APIKey:    account.Key,
		Name:      account.Name,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: now,
	}
}

func (r *accountRecord) toDomain(projects []*projectRecord) core.Account {
	if r == nil {
		return core.Account{}
	}
	account := core.Account{
		Key:       r.APIKey,
		Name:      r.Name,
		Projects:  make([]core.ProjectRef, 0, len(projects)),
		CreatedAt: r.CreatedAt,
	}
	for _, project := range projects {
		account.Projects = append(account.Projects, project.toDomain())
	}
	return account
}

func newProjectRecord(accountID string, project core.ProjectRef, now time.Time) *projectRecord {
	createdAt := project.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &projectRecord{
		ID:         project.ID,
		AccountID:  accountID,
		AccountKey: project.AccountKey,
		Name:       project.Name,
		CreatedAt:  createdAt.UTC(),
	}
}

func (r *projectRecord) toDomain() core.ProjectRef {
	if r == nil {
		return core.ProjectRef{}
	}
	return core.ProjectRef{
		ID:         r.ID,
		AccountKey: r.AccountKey,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
	}
}

func newLeaseRecord(lease core.ResourceLease) *leaseRecord {
	credentials := lease.Credentials
	if credentials == nil {
		credentials = map[string]string{}
	}
	return &leaseRecord{
		ID:          lease.ID,
		ProjectID:   lease.ProjectID,
		StoreType:   string(lease.StoreType),
		Handle:      lease.Handle,
		Credentials: credentials,
		Status:      string(lease.Status),
		LastError:   lease.LastError,
		Attempts:    lease.Attempts,
		CreatedAt:   lease.CreatedAt.UTC(),
		UpdatedAt:   lease.UpdatedAt.UTC(),
	}
}

func (r *leaseRecord) toDomain() core.ResourceLease {
	if r == nil {
		return core.ResourceLease{}
	}
	lease := core.ResourceLease{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		StoreType:   core.StoreType(r.StoreType),
		Handle:      r.Handle,
		Credentials: map[string]string{},
		Status:      core.LeaseStatus(r.Status),
		LastError:   r.LastError,
		Attempts:    r.Attempts,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for key, value := range r.Credentials {
		lease.Credentials[key] = value
	}
	return lease
}
