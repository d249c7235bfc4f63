package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidAPIKey                = errors.New("core: invalid api key")
	ErrInvalidAccountName           = errors.New("core: invalid account name")
	ErrInvalidProjectName           = errors.New("core: invalid project name")
	ErrInvalidStoreType             = errors.New("core: invalid store type")
	ErrInvalidLeaseStatusTransition = errors.New("core: invalid lease status transition")
)

const (
	apiKeyLength         = 16
	maxProjectNameLength = 63
	redactedValue        = "********"
)

type StoreType string

const (
	StoreTypeRelational StoreType = "relational"
	StoreTypeKeyValue   StoreType = "keyvalue"
	StoreTypeObject     StoreType = "object"
	StoreTypeMemory     StoreType = "memory"
)

func (t StoreType) String() string {
	return string(t)
}

func (t StoreType) Validate() error {
	value := string(t)
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStoreType)
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == ':':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidStoreType, value)
		}
	}
	return nil
}

func NormalizeStoreType(value string) StoreType {
	return StoreType(strings.TrimSpace(strings.ToLower(value)))
}

// ValidateAPIKey accepts exactly sixteen ASCII alphanumeric characters.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	problems := make([]string, 0, 2)
	for _, r := range key {
		if !isASCIIAlphanumeric(r) {
			problems = append(problems, "must contain only alphanumeric characters")
			break
		}
	}
	if len(key) != apiKeyLength {
		problems = append(problems, fmt.Sprintf("must be exactly %d characters long", apiKeyLength))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, strings.Join(problems, "; "))
	}
	return nil
}

func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidProjectName)
	}
	if len(name) > maxProjectNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidProjectName, maxProjectNameLength)
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("%w: %q starts or ends with a hyphen", ErrInvalidProjectName, name)
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("%w: %q contains %q", ErrInvalidProjectName, name, r)
	}
	return nil
}

func isASCIIAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

type Account struct {
	Key       string
	Name      string
	Projects  []ProjectRef
	CreatedAt time.Time
}

func (a Account) Project(name string) (ProjectRef, bool) {
	for _, project := range a.Projects {
		if project.Name == name {
			return project, true
		}
	}
	return ProjectRef{}, false
}

type ProjectRef struct {
	ID         string
	AccountKey string
	Name       string
	CreatedAt  time.Time
}

// ResourceName is the store-safe name every backing store derives its resource
// identifiers from. It carries digests of the account and of the lease, so a
// retried lease finds its half-made resource again while a lease created after
// a release gets a new one.
func (p ProjectRef) ResourceName(leaseID string) string {
	return strings.ReplaceAll(p.Name, "-", "_") + "_" + shortDigest(p.AccountKey) + "_" + shortDigest(leaseID)
}

// CompactName fits name within limit bytes. Longer names keep a prefix and
// end with sep plus a digest of the full name, so distinct names stay distinct.
func CompactName(name string, limit int, sep string) string {
	if len(name) <= limit {
		return name
	}
	suffix := sep + longDigest(name)
	if limit <= len(suffix) {
		return suffix[len(suffix)-limit:]
	}
	return strings.TrimRight(name[:limit-len(suffix)], sep) + suffix
}

func shortDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:8]
}

func longDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

type ProjectAccountPair struct {
	ProjectName string
	AccountName string
}

type LeaseStatus string

const (
	LeaseStatusRequested      LeaseStatus = "requested"
	LeaseStatusProvisioning   LeaseStatus = "provisioning"
	LeaseStatusReady          LeaseStatus = "ready"
	LeaseStatusDeprovisioning LeaseStatus = "deprovisioning"
	LeaseStatusReleased       LeaseStatus = "released"
	LeaseStatusFailed         LeaseStatus = "failed"
)

type ResourceLease struct {
	ID          string
	ProjectID   string
	StoreType   StoreType
	Handle      string
	Credentials map[string]string
	Status      LeaseStatus
	LastError   string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l ResourceLease) Live() bool {
	return l.Status != LeaseStatusReleased
}

func (l *ResourceLease) TransitionTo(status LeaseStatus, reason string, now time.Time) error {
	if l == nil {
		return nil
	}
	if l.Status == status {
		l.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			l.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !leaseTransitionAllowed(l.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLeaseStatusTransition, l.Status, status)
	}
	l.Status = status
	l.UpdatedAt = now
	l.LastError = strings.TrimSpace(reason)
	return nil
}

func leaseTransitionAllowed(current, next LeaseStatus) bool {
	allowed := map[LeaseStatus]map[LeaseStatus]struct{}{
		LeaseStatusRequested: {
			LeaseStatusProvisioning:   {},
			LeaseStatusDeprovisioning: {},
		},
		LeaseStatusProvisioning: {
			LeaseStatusReady:          {},
			LeaseStatusFailed:         {},
			LeaseStatusDeprovisioning: {},
		},
		LeaseStatusReady: {
			LeaseStatusDeprovisioning: {},
		},
		LeaseStatusFailed: {
			LeaseStatusProvisioning:   {},
			LeaseStatusDeprovisioning: {},
		},
		LeaseStatusDeprovisioning: {
			LeaseStatusReleased: {},
		},
		LeaseStatusReleased: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// Redacted returns a copy whose secret credential values are masked.
func (l ResourceLease) Redacted() ResourceLease {
	out := l
	out.Credentials = make(map[string]string, len(l.Credentials))
	for key, value := range l.Credentials {
		if isSecretCredentialKey(key) {
			value = redactedValue
		}
		out.Credentials[key] = value
	}
	if uri, ok := out.Credentials[CredentialConnectionString]; ok {
		out.Credentials[CredentialConnectionString] = redactConnectionString(uri, l.Credentials[CredentialPassword])
	}
	return out
}

func (l ResourceLease) Clone() ResourceLease {
	out := l
	out.Credentials = copyStringMap(l.Credentials)
	return out
}

const (
	CredentialEngine           = "engine"
	CredentialHost             = "host"
	CredentialPort             = "port"
	CredentialUsername         = "username"
	CredentialPassword         = "password"
	CredentialDatabase         = "database"
	CredentialConnectionString = "connection_string"
	CredentialNamespace        = "namespace"
	CredentialBucket           = "bucket"
	CredentialRegion           = "region"
	CredentialEndpoint         = "endpoint"
	CredentialToken            = "token"
)

func isSecretCredentialKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return key == CredentialPassword ||
		key == CredentialToken ||
		strings.Contains(key, "secret")
}

func redactConnectionString(uri string, password string) string {
	if password == "" {
		return uri
	}
	return strings.ReplaceAll(uri, ":"+password+"@", ":"+redactedValue+"@")
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func sortedStoreTypes(types []StoreType) []StoreType {
	out := append([]StoreType(nil), types...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
