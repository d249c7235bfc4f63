package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTenantGate_CloseRejectsNewHolders(t *testing.T) {
	gate := newTenantGate()
	reopen, err := gate.close(context.Background(), "project/a")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := gate.enter("account/k", "project/a"); !errors.Is(err, ErrTenantBusy) {
		t.Fatalf("expected busy entering a closed key, got %v", err)
	}
	if _, err := gate.close(context.Background(), "project/a"); !errors.Is(err, ErrTenantBusy) {
		t.Fatalf("expected busy closing twice, got %v", err)
	}
	leave, err := gate.enter("project/b")
	if err != nil {
		t.Fatalf("expected unrelated key open: %v", err)
	}
	leave()

	reopen()
	leave, err = gate.enter("account/k", "project/a")
	if err != nil {
		t.Fatalf("enter after reopen: %v", err)
	}
	leave()
	if got := gate.size(); got != 0 {
		t.Fatalf("expected no slots left, got %d", got)
	}
}

func TestTenantGate_CloseWaitsForHolders(t *testing.T) {
	gate := newTenantGate()
	leave, err := gate.enter("project/a")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}

	closed := make(chan func(), 1)
	go func() {
		reopen, closeErr := gate.close(context.Background(), "project/a")
		if closeErr != nil {
			close(closed)
			return
		}
		closed <- reopen
	}()

	select {
	case <-closed:
		t.Fatalf("close returned while a holder was active")
	case <-time.After(20 * time.Millisecond):
	}
	leave()
	select {
	case reopen, ok := <-closed:
		if !ok {
			t.Fatalf("close failed")
		}
		reopen()
	case <-time.After(time.Second):
		t.Fatalf("close never returned")
	}
}

func TestTenantGate_CloseHonoursContext(t *testing.T) {
	gate := newTenantGate()
	leave, err := gate.enter("project/a")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	defer leave()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := gate.close(ctx, "project/a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	again, err := gate.enter("project/a")
	if err != nil {
		t.Fatalf("expected key reopened after abandoned close: %v", err)
	}
	again()
}
