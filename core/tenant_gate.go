package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// tenantGate coordinates deletes with the operations they would race. Work
// enters a key as a shared holder; a delete closes the key, which rejects new
// holders and waits for the current ones to leave.
type tenantGate struct {
	mu    sync.Mutex
	slots map[string]*gateSlot
}

type gateSlot struct {
	active  int
	closing bool
	drained chan struct{}
}

func newTenantGate() *tenantGate {
	return &tenantGate{slots: make(map[string]*gateSlot)}
}

func accountGateKey(apiKey string) string {
	return "account/" + strings.TrimSpace(apiKey)
}

func projectGateKey(apiKey string, projectName string) string {
	return "project/" + strings.TrimSpace(apiKey) + "/" + projectName
}

// enter registers a holder on every key, in order. It fails with
// ErrTenantBusy when any key is being deleted.
func (g *tenantGate) enter(keys ...string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		if slot, ok := g.slots[key]; ok && slot.closing {
			return nil, fmt.Errorf("%w: %s", ErrTenantBusy, strings.SplitN(key, "/", 2)[0])
		}
	}
	held := make([]*gateSlot, 0, len(keys))
	for _, key := range keys {
		slot := g.slotLocked(key)
		slot.active++
		held = append(held, slot)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for i, slot := range held {
				slot.active--
				if slot.active == 0 && slot.drained != nil {
					close(slot.drained)
					slot.drained = nil
				}
				g.dropLocked(keys[i], slot)
			}
		})
	}, nil
}

// close marks key as being deleted and waits for its holders to leave. The
// returned function reopens the key.
func (g *tenantGate) close(ctx context.Context, key string) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	slot := g.slotLocked(key)
	if slot.closing {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTenantBusy, strings.SplitN(key, "/", 2)[0])
	}
	slot.closing = true
	var wait chan struct{}
	if slot.active > 0 {
		wait = make(chan struct{})
		slot.drained = wait
	}
	g.mu.Unlock()

	var once sync.Once
	reopen := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			slot.closing = false
			slot.drained = nil
			g.dropLocked(key, slot)
		})
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			reopen()
			return nil, ctx.Err()
		}
	}
	return reopen, nil
}

func (g *tenantGate) slotLocked(key string) *gateSlot {
	slot, ok := g.slots[key]
	if !ok {
		slot = &gateSlot{}
		g.slots[key] = slot
	}
	return slot
}

func (g *tenantGate) dropLocked(key string, slot *gateSlot) {
	if slot.active == 0 && !slot.closing && g.slots[key] == slot {
		delete(g.slots, key)
	}
}

func (g *tenantGate) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
