package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-provisioning/core"
)

const (
	handlePrefix = "redis/"
	ownerKey     = "__owner"
	scanBatch    = 256
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store provisions a key namespace per project on a shared Redis. The
// namespace owner key records the project ID.
type Store struct {
	client goredis.UniversalClient
	owned  bool
	host   string
	port   string
	db     int
	logger glog.Logger
}

type Option func(*Store)

func WithLogger(logger glog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	addr := strings.TrimPrefix(strings.TrimPrefix(cfg.Addr, "redis://"), "rediss://")
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	cfg.Addr = addr
	store := New(client, cfg, opts...)
	store.owned = true
	return store, nil
}

func New(client goredis.UniversalClient, cfg Config, opts ...Option) *Store {
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host, port = cfg.Addr, "6379"
	}
	store := &Store{
		client: client,
		host:   host,
		port:   port,
		db:     cfg.DB,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) HandleFor(req core.AllocateRequest) string {
	return handlePrefix + req.ResourceName
}

func (s *Store) Allocate(ctx context.Context, req core.AllocateRequest) (core.Allocation, error) {
	if req.ResourceName == "" || req.ProjectID == "" {
		return core.Allocation{}, fmt.Errorf("redis: resource name and project id are required")
	}
	namespace := req.ResourceName
	key := namespaceKey(namespace, ownerKey)

	created, err := s.client.SetNX(ctx, key, req.ProjectID, 0).Result()
	if err != nil {
		return core.Allocation{}, fmt.Errorf("redis: claim namespace %s: %w", namespace, err)
	}
	adopted := false
	if !created {
		owner, err := s.client.Get(ctx, key).Result()
		if err != nil {
			return core.Allocation{}, fmt.Errorf("redis: read namespace owner %s: %w", namespace, err)
		}
		if owner != req.ProjectID {
			return core.Allocation{}, fmt.Errorf("%w: redis namespace %s", core.ErrStoreConflict, namespace)
		}
		adopted = true
	}

	s.logger.Info("redis namespace allocated", "namespace", namespace, "adopted", adopted)
	return core.Allocation{
		Handle: handlePrefix + namespace,
		Credentials: map[string]string{
			core.CredentialEngine:    "redis",
			core.CredentialHost:      s.host,
			core.CredentialPort:      s.port,
			core.CredentialDatabase:  strconv.Itoa(s.db),
			core.CredentialNamespace: namespace + ":",
		},
		Adopted: adopted,
	}, nil
}

// Release deletes every key in the namespace. The owner key goes last so an
// interrupted release can be resumed.
func (s *Store) Release(ctx context.Context, handle string) error {
	namespace := strings.TrimPrefix(handle, handlePrefix)
	if namespace == "" || namespace == handle {
		return fmt.Errorf("redis: invalid handle %q", handle)
	}
	owner := namespaceKey(namespace, ownerKey)
	if _, err := s.client.Get(ctx, owner).Result(); err != nil {
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: redis namespace %s", core.ErrStoreNotFound, namespace)
		}
		return fmt.Errorf("redis: read namespace owner %s: %w", namespace, err)
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, namespaceKey(namespace, "*"), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan namespace %s: %w", namespace, err)
		}
		batch := make([]string, 0, len(keys))
		for _, key := range keys {
			if key != owner {
				batch = append(batch, key)
			}
		}
		if len(batch) > 0 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis: delete namespace keys %s: %w", namespace, err)
			}
			deleted += len(batch)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := s.client.Del(ctx, owner).Err(); err != nil {
		return fmt.Errorf("redis: delete namespace owner %s: %w", namespace, err)
	}
	s.logger.Info("redis namespace released", "namespace", namespace, "keys", deleted)
	return nil
}

func namespaceKey(namespace, key string) string {
	return namespace + ":" + key
}
