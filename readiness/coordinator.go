package readiness

import (
	"context"
	"errors"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-provisioning/core"
)

var ErrAlreadyStarted = errors.New("readiness: coordinator already started")

// Waiter blocks until endpoints are reachable under policy.
type Waiter interface {
	Wait(ctx context.Context, endpoints []Endpoint, policy Policy) error
}

// Coordinator gates a main entrypoint behind a readiness wait and runs it at
// most once.
type Coordinator struct {
	waiter  Waiter
	policy  Policy
	logger  glog.Logger
	started atomic.Bool
}

type CoordinatorOption func(*Coordinator)

func WithCoordinatorLogger(logger glog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCoordinator(waiter Waiter, policy Policy, opts ...CoordinatorOption) *Coordinator {
	if waiter == nil {
		waiter = NewProbe()
	}
	coordinator := &Coordinator{
		waiter: waiter,
		policy: policy,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(coordinator)
		}
	}
	return coordinator
}

// Run waits for endpoints and then invokes main exactly once. A readiness
// timeout is returned as a fatal error and main is never called.
func (c *Coordinator) Run(ctx context.Context, endpoints []Endpoint, main func(context.Context) error) error {
	if !c.started.CompareAndSwap(false, true) {
		c.logger.Error("coordinator run called more than once")
		return ErrAlreadyStarted
	}
	if main == nil {
		return startupFatal(errors.New("readiness: main entrypoint is nil"), "no entrypoint to start")
	}

	c.logger.Info("waiting for dependencies", "endpoints", len(endpoints))
	if err := c.waiter.Wait(ctx, endpoints, c.policy); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Error("dependencies not ready", "error", err.Error())
		return startupFatal(err, "dependencies not ready")
	}

	c.logger.Info("dependencies ready, starting main entrypoint")
	return main(ctx)
}

func startupFatal(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(core.ProvisioningErrorFatal).
		WithCode(500)
}

// IsFatal reports whether err is a startup failure the process should exit on.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == core.ProvisioningErrorFatal
	}
	return false
}
