package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var ErrTimeout = errors.New("readiness: dependencies not ready before deadline")

// Dialer opens a connection to address. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Probe struct {
	dialer Dialer
	logger glog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, delay time.Duration) error
}

type ProbeOption func(*Probe)

func WithDialer(dialer Dialer) ProbeOption {
	return func(p *Probe) {
		if dialer != nil {
			p.dialer = dialer
		}
	}
}

func WithLogger(logger glog.Logger) ProbeOption {
	return func(p *Probe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(now func() time.Time) ProbeOption {
	return func(p *Probe) {
		if now != nil {
			p.now = now
		}
	}
}

func WithSleeper(sleep func(ctx context.Context, delay time.Duration) error) ProbeOption {
	return func(p *Probe) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func NewProbe(opts ...ProbeOption) *Probe {
	probe := &Probe{
		dialer: &net.Dialer{},
		logger: glog.Nop(),
		now:    time.Now,
		sleep:  waitWithContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(probe)
		}
	}
	return probe
}

type endpointFailure struct {
	endpoint Endpoint
	err      error
}

// Wait probes every endpoint until one pass finds all of them reachable. It
// returns ErrTimeout once policy.MaxDuration has elapsed, or the context
// error if ctx is done first.
func (p *Probe) Wait(ctx context.Context, endpoints []Endpoint, policy Policy) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := p.now()
	for attempt := 1; ; attempt++ {
		failures := p.probeAll(ctx, endpoints, policy.dialTimeout())
		if len(failures) == 0 {
			p.logger.Info("dependencies ready",
				"endpoints", len(endpoints),
				"attempts", attempt,
				"elapsed", p.now().Sub(startedAt).String(),
			)
			return nil
		}
		for _, failure := range failures {
			p.logger.Warn("dependency not reachable",
				"endpoint", failure.endpoint.String(),
				"attempt", attempt,
				"error", failure.err.Error(),
			)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := policy.NextDelay(attempt)
		if policy.MaxDuration > 0 {
			elapsed := p.now().Sub(startedAt)
			if elapsed >= policy.MaxDuration {
				return fmt.Errorf("%w: %d unreachable after %d attempts in %s (first: %s: %v)",
					ErrTimeout, len(failures), attempt, elapsed, failures[0].endpoint, failures[0].err)
			}
			if remaining := policy.MaxDuration - elapsed; delay > remaining {
				delay = remaining
			}
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p *Probe) probeAll(ctx context.Context, endpoints []Endpoint, timeout time.Duration) []endpointFailure {
	results := make([]error, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(index int, endpoint Endpoint) {
			defer wg.Done()
			results[index] = p.dial(ctx, endpoint, timeout)
		}(i, endpoint)
	}
	wg.Wait()

	failures := make([]endpointFailure, 0)
	for i, err := range results {
		if err != nil {
			failures = append(failures, endpointFailure{endpoint: endpoints[i], err: err})
		}
	}
	return failures
}

func (p *Probe) dial(ctx context.Context, endpoint Endpoint, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", endpoint.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
