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

// AccountStore persists accounts and projects. Uniqueness is enforced by
// the api_key and (account_id, name) unique indexes.
type AccountStore struct {
	db          *bun.DB
	accountRepo repository.Repository[*accountRecord]
	projectRepo repository.Repository[*projectRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	accountRepo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := accountRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	projectRepo := repository.NewRepository[*projectRecord](db, projectHandlers())
	if validator, ok := projectRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid project repository wiring: %w", err)
		}
	}
	return &AccountStore{db: db, accountRepo: accountRepo, projectRepo: projectRepo}, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, account core.Account) (core.Account, error) {
	if s == nil || s.accountRepo == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	record := newAccountRecord(uuid.NewString(), account, time.Now().UTC())
	created, err := s.accountRepo.Create(ctx, record)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountExists, account.Name)
		}
		return core.Account{}, err
	}
	return created.toDomain(nil), nil
}

func (s *AccountStore) GetAccount(ctx context.Context, key string) (core.Account, error) {
	if s == nil || s.db == nil {
		return core.Account{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	account, err := s.findAccount(ctx, s.db, key)
	if err != nil {
		return core.Account{}, err
	}
	projects, _, err := s.projectRepo.List(ctx,
		repository.SelectBy("account_id", "=", account.ID),
		repository.OrderBy("name ASC"),
	)
	if err != nil {
		return core.Account{}, err
	}
	return account.toDomain(projects), nil
}

func (s *AccountStore) DeleteAccount(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.findAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*projectRecord)(nil)).
			Where("account_id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*accountRecord)(nil)).
			Where("id = ?", account.ID).
			Exec(ctx)
		return err
	})
}

// AddProject inserts a project inside one transaction. Touching the account
// row first serializes concurrent adds for the same account so the project
// limit holds.
func (s *AccountStore) AddProject(ctx context.Context, key string, project core.ProjectRef, maxProjects int) (core.ProjectRef, error) {
	if s == nil || s.db == nil || s.projectRepo == nil {
		return core.ProjectRef{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(project.ID) == "" {
		project.ID = uuid.NewString()
	}

	var created core.ProjectRef
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.findAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*accountRecord)(nil)).
			Set("updated_at = ?", now).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}

		exists, err := tx.NewSelect().
			Model((*projectRecord)(nil)).
			Where("account_id = ?", account.ID).
			Where("name = ?", project.Name).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", core.ErrProjectExists, project.Name)
		}
		if maxProjects > 0 {
			count, err := tx.NewSelect().
				Model((*projectRecord)(nil)).
				Where("account_id = ?", account.ID).
				Count(ctx)
			if err != nil {
				return err
			}
			if count >= maxProjects {
				return fmt.Errorf("%w: account owns %d of %d projects", core.ErrProjectLimitReached, count, maxProjects)
			}
		}

		project.AccountKey = account.APIKey
		inserted, err := s.projectRepo.CreateTx(ctx, tx, newProjectRecord(account.ID, project, now))
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", core.ErrProjectExists, project.Name)
			}
			return err
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.ProjectRef{}, err
	}
	return created, nil
}

func (s *AccountStore) RemoveProject(ctx context.Context, key string, projectName string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.findAccount(ctx, tx, key)
		if err != nil {
			return err
		}
		result, err := tx.NewDelete().
			Model((*projectRecord)(nil)).
			Where("account_id = ?", account.ID).
			Where("name = ?", projectName).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s", core.ErrProjectNotFound, projectName)
		}
		return nil
	})
}

func (s *AccountStore) ProjectNameExists(ctx context.Context, projectName string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.NewSelect().
		Model((*projectRecord)(nil)).
		Where("name = ?", projectName).
		Exists(ctx)
}

func (s *AccountStore) ListProjectAccountPairs(ctx context.Context) ([]core.ProjectAccountPair, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	rows := make([]projectAccountRow, 0)
	err := s.db.NewRaw(
		"SELECT p.name AS project_name, a.name AS account_name "+
			"FROM provisioning_projects AS p "+
			"JOIN provisioning_accounts AS a ON a.id = p.account_id "+
			"ORDER BY p.name ASC, a.name ASC",
	).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	pairs := make([]core.ProjectAccountPair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, core.ProjectAccountPair{ProjectName: row.ProjectName, AccountName: row.AccountName})
	}
	return pairs, nil
}

func (s *AccountStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	return s.db.PingContext(ctx)
}

func (s *AccountStore) findAccount(ctx context.Context, db bun.IDB, key string) (*accountRecord, error) {
	record := &accountRecord{}
	err := db.NewSelect().
		Model(record).
		Where("api_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, err
	}
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique") || strings.Contains(text, "duplicate")
}
