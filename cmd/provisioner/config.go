package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-provisioning/core"
)

const envPrefix = "PROVISIONER_"

type envKind int

const (
	envString envKind = iota
	envList
	envBool
	envInt
)

type envBinding struct {
	path []string
	kind envKind
}

// envBindings maps PROVISIONER_* variables onto config paths. Durations stay
// strings and are parsed by the config provider.
var envBindings = map[string]envBinding{
	"SERVICE_NAME":                     {path: []string{"service_name"}},
	"READINESS_ENDPOINTS":              {path: []string{"readiness", "endpoints"}, kind: envList},
	"READINESS_STRATEGY":               {path: []string{"readiness", "strategy"}},
	"READINESS_INTERVAL":               {path: []string{"readiness", "interval"}},
	"READINESS_INITIAL_BACKOFF":        {path: []string{"readiness", "initial_backoff"}},
	"READINESS_MAX_BACKOFF":            {path: []string{"readiness", "max_backoff"}},
	"READINESS_MAX_DURATION":           {path: []string{"readiness", "max_duration"}},
	"READINESS_DIAL_TIMEOUT":           {path: []string{"readiness", "dial_timeout"}},
	"TENANCY_MAX_PROJECTS_PER_ACCOUNT": {path: []string{"tenancy", "max_projects_per_account"}, kind: envInt},
	"TENANCY_BOOTSTRAP_FILE":           {path: []string{"tenancy", "bootstrap_file"}},
	"PROVISIONING_LOCK_TIMEOUT":        {path: []string{"provisioning", "lock_timeout"}},
	"HTTP_ADDRESS":                     {path: []string{"http", "address"}},
	"PERSISTENCE_DRIVER":               {path: []string{"persistence", "driver"}},
	"PERSISTENCE_DSN":                  {path: []string{"persistence", "dsn"}},
	"PERSISTENCE_DEBUG":                {path: []string{"persistence", "debug"}, kind: envBool},
	"STORES_POSTGRES_ENABLED":          {path: []string{"stores", "postgres", "enabled"}, kind: envBool},
	"STORES_POSTGRES_URL":              {path: []string{"stores", "postgres", "url"}},
	"STORES_POSTGRES_PUBLIC_HOST":      {path: []string{"stores", "postgres", "public_host"}},
	"STORES_POSTGRES_PUBLIC_PORT":      {path: []string{"stores", "postgres", "public_port"}, kind: envInt},
	"STORES_REDIS_ENABLED":             {path: []string{"stores", "redis", "enabled"}, kind: envBool},
	"STORES_REDIS_ADDR":                {path: []string{"stores", "redis", "addr"}},
	"STORES_REDIS_PASSWORD":            {path: []string{"stores", "redis", "password"}},
	"STORES_REDIS_DB":                  {path: []string{"stores", "redis", "db"}, kind: envInt},
	"STORES_S3_ENABLED":                {path: []string{"stores", "s3", "enabled"}, kind: envBool},
	"STORES_S3_REGION":                 {path: []string{"stores", "s3", "region"}},
	"STORES_S3_ENDPOINT":               {path: []string{"stores", "s3", "endpoint"}},
	"STORES_S3_ACCESS_KEY_ID":          {path: []string{"stores", "s3", "access_key_id"}},
	"STORES_S3_SECRET_ACCESS_KEY":      {path: []string{"stores", "s3", "secret_access_key"}},
	"STORES_S3_USE_PATH_STYLE":         {path: []string{"stores", "s3", "use_path_style"}, kind: envBool},
	"STORES_S3_BUCKET_PREFIX":          {path: []string{"stores", "s3", "bucket_prefix"}},
	"STORES_MEMORY_ENABLED":            {path: []string{"stores", "memory", "enabled"}, kind: envBool},
}

// fileEnvLoader reads an optional YAML file and overlays PROVISIONER_*
// environment variables on top of it.
type fileEnvLoader struct {
	path   string
	lookup func(string) (string, bool)
}

func newFileEnvLoader(path string, lookup func(string) (string, bool)) fileEnvLoader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return fileEnvLoader{path: strings.TrimSpace(path), lookup: lookup}
}

func (l fileEnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", l.path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	for suffix, binding := range envBindings {
		value, ok := l.lookup(envPrefix + suffix)
		if !ok {
			continue
		}
		parsed, err := parseEnvValue(value, binding.kind)
		if err != nil {
			return nil, fmt.Errorf("config: %s%s: %w", envPrefix, suffix, err)
		}
		setPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func parseEnvValue(value string, kind envKind) (any, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case envList:
		out := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	case envBool:
		return strconv.ParseBool(value)
	case envInt:
		return strconv.Atoi(value)
	default:
		return value, nil
	}
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func loadConfig(ctx context.Context, path string, lookup func(string) (string, bool)) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(newFileEnvLoader(path, lookup))
	return provider.Load(ctx, core.DefaultConfig())
}
