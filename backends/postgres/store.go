package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goliatone/go-provisioning/core"
)

const (
	handlePrefix = "postgres/"
	markerPrefix = "go-provisioning:project="

	maxIdentifierLength = 63

	queryDatabase = `SELECT shobj_description(d.oid, 'pg_database'), pg_get_userbyid(d.datdba) FROM pg_database d WHERE d.datname = $1`
	queryRole     = `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`
)

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	URL        string
	PublicHost string
	PublicPort int
}

// Store provisions one database and one login role per project. The
// database comment carries the owning project ID.
type Store struct {
	db       Querier
	pool     *pgxpool.Pool
	host     string
	port     int
	logger   glog.Logger
	password func() (string, error)
}

type Option func(*Store)

func WithLogger(logger glog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPasswordGenerator(fn func() (string, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.password = fn
		}
	}
}

// Connect opens a pgx pool against the admin URL and verifies it.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse admin url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if cfg.PublicHost == "" {
		cfg.PublicHost = poolConfig.ConnConfig.Host
	}
	if cfg.PublicPort == 0 {
		cfg.PublicPort = int(poolConfig.ConnConfig.Port)
	}
	store := New(pool, cfg, opts...)
	store.pool = pool
	return store, nil
}

func New(db Querier, cfg Config, opts ...Option) *Store {
	store := &Store{
		db:       db,
		host:     cfg.PublicHost,
		port:     cfg.PublicPort,
		logger:   glog.Nop(),
		password: randomPassword,
	}
	if store.host == "" {
		store.host = "localhost"
	}
	if store.port == 0 {
		store.port = 5432
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if pinger, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func (s *Store) HandleFor(req core.AllocateRequest) string {
	return handlePrefix + identifierName(req.ResourceName)
}

func (s *Store) Allocate(ctx context.Context, req core.AllocateRequest) (core.Allocation, error) {
	if req.ResourceName == "" || req.ProjectID == "" {
		return core.Allocation{}, fmt.Errorf("postgres: resource name and project id are required")
	}
	name := identifierName(req.ResourceName)
	marker := ownerMarker(req.ProjectID)

	var comment *string
	var owner string
	err := s.db.QueryRow(ctx, queryDatabase, name).Scan(&comment, &owner)
	exists := true
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
	} else if err != nil {
		return core.Allocation{}, fmt.Errorf("postgres: inspect database %s: %w", name, err)
	}

	adopted := false
	if exists {
		switch {
		case comment != nil && *comment == marker:
			adopted = true
		case comment == nil && owner == name:
			// created but not yet marked
			adopted = true
		default:
			return core.Allocation{}, fmt.Errorf("%w: database %s belongs to another project", core.ErrStoreConflict, name)
		}
	}

	password, err := s.password()
	if err != nil {
		return core.Allocation{}, fmt.Errorf("postgres: generate password: %w", err)
	}
	if err := s.ensureRole(ctx, name, password); err != nil {
		return core.Allocation{}, err
	}
	if !exists {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s OWNER %s", quoteIdent(name), quoteIdent(name))); err != nil {
			return core.Allocation{}, fmt.Errorf("postgres: create database %s: %w", name, err)
		}
	}
	if comment == nil {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("COMMENT ON DATABASE %s IS %s", quoteIdent(name), quoteLiteral(marker))); err != nil {
			return core.Allocation{}, fmt.Errorf("postgres: mark database %s: %w", name, err)
		}
	}

	s.logger.Info("postgres database allocated", "database", name, "adopted", adopted)
	return core.Allocation{
		Handle:      handlePrefix + name,
		Credentials: s.credentials(name, password),
		Adopted:     adopted,
	}, nil
}

func (s *Store) ensureRole(ctx context.Context, name, password string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, queryRole, name).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: inspect role %s: %w", name, err)
	}
	statement := "CREATE ROLE %s LOGIN PASSWORD %s"
	if exists {
		statement = "ALTER ROLE %s WITH LOGIN PASSWORD %s"
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(statement, quoteIdent(name), quoteLiteral(password))); err != nil {
		return fmt.Errorf("postgres: ensure role %s: %w", name, err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, handle string) error {
	name := strings.TrimPrefix(handle, handlePrefix)
	if name == "" || name == handle {
		return fmt.Errorf("postgres: invalid handle %q", handle)
	}

	var comment *string
	var owner string
	err := s.db.QueryRow(ctx, queryDatabase, name).Scan(&comment, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, dropErr := s.db.Exec(ctx, "DROP ROLE IF EXISTS "+quoteIdent(name)); dropErr != nil {
			return fmt.Errorf("postgres: drop role %s: %w", name, dropErr)
		}
		return fmt.Errorf("%w: database %s", core.ErrStoreNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("postgres: inspect database %s: %w", name, err)
	}

	if _, err := s.db.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", quoteIdent(name))); err != nil {
		return fmt.Errorf("postgres: drop database %s: %w", name, err)
	}
	if _, err := s.db.Exec(ctx, "DROP ROLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("postgres: drop role %s: %w", name, err)
	}
	s.logger.Info("postgres database released", "database", name)
	return nil
}

func (s *Store) credentials(name, password string) map[string]string {
	port := strconv.Itoa(s.port)
	uri := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(name, password),
		Host:   net.JoinHostPort(s.host, port),
		Path:   "/" + name,
	}
	return map[string]string{
		core.CredentialEngine:           "postgres",
		core.CredentialHost:             s.host,
		core.CredentialPort:             port,
		core.CredentialUsername:         name,
		core.CredentialPassword:         password,
		core.CredentialDatabase:         name,
		core.CredentialConnectionString: uri.String(),
	}
}

func ownerMarker(projectID string) string {
	return markerPrefix + projectID
}

// identifierName keeps names within the 63 byte identifier limit.
func identifierName(resourceName string) string {
	return core.CompactName(resourceName, maxIdentifierLength, "_")
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
