package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-provisioning/core"
)

// LeaseStore persists resource leases. A partial unique index on
// (project_id, store_type) for rows not yet released keeps one live lease per
// key.
type LeaseStore struct {
	db   *bun.DB
	repo repository.Repository[*leaseRecord]
}

func NewLeaseStore(db *bun.DB) (*LeaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*leaseRecord](db, leaseHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid lease repository wiring: %w", err)
		}
	}
	return &LeaseStore{db: db, repo: repo}, nil
}

func (s *LeaseStore) FindActive(ctx context.Context, projectID string, storeType core.StoreType) (core.ResourceLease, error) {
	if s == nil || s.db == nil {
		return core.ResourceLease{}, fmt.Errorf("sqlstore: lease store is not configured")
	}
	record := &leaseRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("project_id = ?", strings.TrimSpace(projectID)).
		Where("store_type = ?", string(storeType)).
		Where("status <> ?", string(core.LeaseStatusReleased)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ResourceLease{}, core.ErrLeaseNotFound
		}
		return core.ResourceLease{}, err
	}
	return record.toDomain(), nil
}

func (s *LeaseStore) Create(ctx context.Context, lease core.ResourceLease) (core.ResourceLease, error) {
	if s == nil || s.repo == nil {
		return core.ResourceLease{}, fmt.Errorf("sqlstore: lease store is not configured")
	}
	if strings.TrimSpace(lease.ID) == "" {
		lease.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lease.CreatedAt.IsZero() {
		lease.CreatedAt = now
	}
	if lease.UpdatedAt.IsZero() {
		lease.UpdatedAt = lease.CreatedAt
	}
	created, err := s.repo.Create(ctx, newLeaseRecord(lease))
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ResourceLease{}, fmt.Errorf("%w: live lease for %s", core.ErrLeaseBusy, lease.StoreType)
		}
		return core.ResourceLease{}, err
	}
	return created.toDomain(), nil
}

func (s *LeaseStore) Save(ctx context.Context, lease core.ResourceLease) (core.ResourceLease, error) {
	if s == nil || s.db == nil {
		return core.ResourceLease{}, fmt.Errorf("sqlstore: lease store is not configured")
	}
	id := strings.TrimSpace(lease.ID)
	if id == "" {
		return core.ResourceLease{}, core.ErrLeaseNotFound
	}
	record := newLeaseRecord(lease)
	result, err := s.db.NewUpdate().
		Model(record).
		Column("handle", "credentials", "status", "last_error", "attempts", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ResourceLease{}, fmt.Errorf("%w: live lease for %s", core.ErrLeaseBusy, lease.StoreType)
		}
		return core.ResourceLease{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.ResourceLease{}, core.ErrLeaseNotFound
	}
	return record.toDomain(), nil
}

func (s *LeaseStore) ListActive(ctx context.Context, projectID string) ([]core.ResourceLease, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: lease store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("project_id", "=", strings.TrimSpace(projectID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status <> ?", string(core.LeaseStatusReleased))
		}),
		repository.OrderBy("store_type ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ResourceLease, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
