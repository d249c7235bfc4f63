package readiness

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type stubConn struct {
	net.Conn
}

func (stubConn) Close() error { return nil }

// flakyDialer refuses the first failures dials per address.
type flakyDialer struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func newFlakyDialer(failures map[string]int) *flakyDialer {
	return &flakyDialer{failures: failures, calls: map[string]int{}}
}

func (d *flakyDialer) DialContext(_ context.Context, _ string, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[address]++
	if d.calls[address] <= d.failures[address] {
		return nil, errors.New("connection refused")
	}
	return stubConn{}, nil
}

func (d *flakyDialer) callCount(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[address]
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, delay)
	c.now = c.now.Add(delay)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func mustEndpoints(t *testing.T, values ...string) []Endpoint {
	t.Helper()
	endpoints, err := ParseEndpoints(values)
	if err != nil {
		t.Fatalf("parse endpoints: %v", err)
	}
	return endpoints
}

func TestProbeWait_EventuallyReadyWithoutBusyLoop(t *testing.T) {
	dialer := newFlakyDialer(map[string]int{"db:5432": 3})
	clock := newFakeClock()
	probe := NewProbe(WithDialer(dialer), WithClock(clock.Now), WithSleeper(clock.Sleep))

	err := probe.Wait(context.Background(), mustEndpoints(t, "db:5432", "cache:6379"), Policy{
		Backoff: FixedBackoff{Interval: time.Second},
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	sleeps := clock.recorded()
	if len(sleeps) != 3 {
		t.Fatalf("expected three sleeps between four passes, got %v", sleeps)
	}
	for _, delay := range sleeps {
		if delay < time.Second {
			t.Fatalf("expected at least the configured interval between passes, got %s", delay)
		}
	}
	if got := dialer.callCount("db:5432"); got != 4 {
		t.Fatalf("expected four probes of db, got %d", got)
	}
	if got := dialer.callCount("cache:6379"); got != 4 {
		t.Fatalf("expected whole set re-probed each pass, got %d", got)
	}
}

func TestProbeWait_TimesOut(t *testing.T) {
	dialer := newFlakyDialer(map[string]int{"db:5432": 1000})
	clock := newFakeClock()
	probe := NewProbe(WithDialer(dialer), WithClock(clock.Now), WithSleeper(clock.Sleep))

	err := probe.Wait(context.Background(), mustEndpoints(t, "db:5432"), Policy{
		Backoff:     FixedBackoff{Interval: 4 * time.Second},
		MaxDuration: 10 * time.Second,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	var total time.Duration
	for _, delay := range clock.recorded() {
		total += delay
	}
	if total != 10*time.Second {
		t.Fatalf("expected to wait exactly the max duration, waited %s", total)
	}
}

func TestProbeWait_ExponentialBackoffIsCapped(t *testing.T) {
	dialer := newFlakyDialer(map[string]int{"db:5432": 5})
	clock := newFakeClock()
	probe := NewProbe(WithDialer(dialer), WithClock(clock.Now), WithSleeper(clock.Sleep))

	err := probe.Wait(context.Background(), mustEndpoints(t, "db:5432"), Policy{
		Backoff: ExponentialBackoff{Initial: time.Second, Max: 4 * time.Second},
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	got := clock.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestProbeWait_CancelledContext(t *testing.T) {
	dialer := newFlakyDialer(map[string]int{"db:5432": 1000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probe := NewProbe(WithDialer(dialer), WithSleeper(newFakeClock().Sleep))

	if err := probe.Wait(ctx, mustEndpoints(t, "db:5432"), Policy{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestProbeWait_NoEndpointsIsReady(t *testing.T) {
	if err := NewProbe().Wait(context.Background(), nil, Policy{}); err != nil {
		t.Fatalf("expected ready with no endpoints, got %v", err)
	}
}

func TestProbeWait_RealListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = NewProbe().Wait(ctx, mustEndpoints(t, listener.Addr().String()), Policy{
		Backoff:     FixedBackoff{Interval: 10 * time.Millisecond},
		MaxDuration: 2 * time.Second,
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestParseEndpoints(t *testing.T) {
	endpoints, err := ParseEndpoints([]string{"db:5432, cache=redis:6379", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expected two endpoints, got %#v", endpoints)
	}
	if endpoints[1].Name != "cache" || endpoints[1].Host != "redis" || endpoints[1].Port != 6379 {
		t.Fatalf("unexpected named endpoint %#v", endpoints[1])
	}
	for _, bad := range []string{"db", "db:0", ":5432", "db:port"} {
		if _, err := ParseEndpoint(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
