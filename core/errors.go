package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ProvisioningErrorNotFound  = "PROVISIONING_NOT_FOUND"
	ProvisioningErrorConflict  = "PROVISIONING_CONFLICT"
	ProvisioningErrorTransient = "PROVISIONING_TRANSIENT"
	ProvisioningErrorFatal     = "PROVISIONING_FATAL"
	ProvisioningErrorBadInput  = "PROVISIONING_BAD_INPUT"
)

var (
	ErrAccountNotFound     = errors.New("core: account not found")
	ErrAccountExists       = errors.New("core: account already exists")
	ErrProjectNotFound     = errors.New("core: project not found")
	ErrProjectExists       = errors.New("core: project already exists")
	ErrProjectLimitReached = errors.New("core: project limit reached")
	ErrProjectHasResources = errors.New("core: project has resources")
	ErrLeaseNotFound       = errors.New("core: resource lease not found")
	ErrLeaseBusy           = errors.New("core: resource lease is being deprovisioned")
	ErrLeaseNotFailed      = errors.New("core: resource lease is not in failed state")
	ErrTenantBusy          = errors.New("core: tenant is being deleted")
	ErrStoreNotRegistered  = errors.New("core: store type not registered")
	ErrStoreConflict       = errors.New("core: store resource owned by another project")
	ErrStoreNotFound       = errors.New("core: store resource not found")
	ErrStoreUnavailable    = errors.New("core: store unavailable")
)

// ErrorKind is the provisioning error taxonomy exposed to callers.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindNotFound  ErrorKind = "not_found"
	KindConflict  ErrorKind = "conflict"
	KindTransient ErrorKind = "transient"
	KindFatal     ErrorKind = "fatal"
	KindBadInput  ErrorKind = "bad_input"
)

// Kind classifies err into the provisioning taxonomy. Unknown errors are
// transient since they almost always come from a backing store.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrProjectNotFound),
		errors.Is(err, ErrLeaseNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrProjectExists),
		errors.Is(err, ErrProjectLimitReached),
		errors.Is(err, ErrProjectHasResources),
		errors.Is(err, ErrLeaseBusy),
		errors.Is(err, ErrLeaseNotFailed),
		errors.Is(err, ErrTenantBusy),
		errors.Is(err, ErrStoreConflict),
		errors.Is(err, ErrInvalidLeaseStatusTransition):
		return KindConflict
	case errors.Is(err, ErrInvalidAPIKey),
		errors.Is(err, ErrInvalidAccountName),
		errors.Is(err, ErrInvalidProjectName),
		errors.Is(err, ErrInvalidStoreType),
		errors.Is(err, ErrStoreNotRegistered):
		return KindBadInput
	case errors.Is(err, ErrStoreNotFound):
		return KindNotFound
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return kindFromCategory(richErr)
	}
	return KindTransient
}

func kindFromCategory(err *goerrors.Error) ErrorKind {
	switch strings.TrimSpace(err.TextCode) {
	case ProvisioningErrorNotFound:
		return KindNotFound
	case ProvisioningErrorConflict:
		return KindConflict
	case ProvisioningErrorTransient:
		return KindTransient
	case ProvisioningErrorFatal:
		return KindFatal
	case ProvisioningErrorBadInput:
		return KindBadInput
	}
	switch err.Category {
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindBadInput
	case goerrors.CategoryInternal:
		return KindFatal
	default:
		return KindTransient
	}
}

func IsNotFound(err error) bool  { return Kind(err) == KindNotFound }
func IsConflict(err error) bool  { return Kind(err) == KindConflict }
func IsTransient(err error) bool { return Kind(err) == KindTransient }

// MapError converts err into the go-errors envelope used at the API edge.
func MapError(err error) *goerrors.Error {
	return provisioningErrorMapper(err)
}

func provisioningErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureProvisioningErrorEnvelope(richErr)
	}

	var mapped *goerrors.Error
	switch Kind(err) {
	case KindNotFound:
		mapped = newProvisioningError(err, goerrors.CategoryNotFound, ProvisioningErrorNotFound)
	case KindConflict:
		mapped = newProvisioningError(err, goerrors.CategoryConflict, ProvisioningErrorConflict)
	case KindBadInput:
		mapped = newProvisioningError(err, goerrors.CategoryBadInput, ProvisioningErrorBadInput)
	case KindFatal:
		mapped = newProvisioningError(err, goerrors.CategoryInternal, ProvisioningErrorFatal)
	default:
		mapped = newProvisioningError(err, goerrors.CategoryExternal, ProvisioningErrorTransient)
	}
	return ensureProvisioningErrorEnvelope(mapped)
}

func newProvisioningError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return goerrors.Wrap(source, category, source.Error()).
		WithTextCode(textCode)
}

func ensureProvisioningErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultProvisioningTextCode(err.Category)
	}
	if err.Code == 0 {
		err.Code = provisioningHTTPStatus(err.TextCode)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultProvisioningTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ProvisioningErrorBadInput
	case goerrors.CategoryNotFound:
		return ProvisioningErrorNotFound
	case goerrors.CategoryConflict:
		return ProvisioningErrorConflict
	case goerrors.CategoryInternal:
		return ProvisioningErrorFatal
	default:
		return ProvisioningErrorTransient
	}
}

func provisioningHTTPStatus(textCode string) int {
	switch textCode {
	case ProvisioningErrorBadInput:
		return http.StatusBadRequest
	case ProvisioningErrorNotFound:
		return http.StatusNotFound
	case ProvisioningErrorConflict:
		return http.StatusConflict
	case ProvisioningErrorTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ClassifyStoreError normalises a backing store failure: ownership clashes
// stay conflicts, missing resources stay not found, anything else is transient.
func ClassifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch Kind(err) {
	case KindConflict, KindNotFound:
		return err
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &storeError{err: err}
}

type storeError struct {
	err error
}

func (e *storeError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.err.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}
