package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-provisioning/readiness"
)

func TestWaitCommand_NoEndpointsSucceeds(t *testing.T) {
	var logs bytes.Buffer
	root := newRootCommand(&logs, mapLookup(nil))
	root.SetArgs([]string{"wait", "--log-format", "text"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.Contains(logs.String(), "dependencies ready") {
		t.Fatalf("expected readiness log, got %q", logs.String())
	}
}

func TestWaitCommand_TimeoutIsFatal(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{}, mapLookup(map[string]string{
		"PROVISIONER_READINESS_ENDPOINTS":    "127.0.0.1:1",
		"PROVISIONER_READINESS_INTERVAL":     "10ms",
		"PROVISIONER_READINESS_MAX_DURATION": "50ms",
		"PROVISIONER_READINESS_DIAL_TIMEOUT": "20ms",
	}))
	root.SetArgs([]string{"wait"})
	err := root.ExecuteContext(context.Background())
	if err == nil {
		t.Fatalf("expected readiness timeout")
	}
	if !readiness.IsFatal(err) {
		t.Fatalf("expected fatal startup error, got %v", err)
	}
	if exitCode(err) != 1 {
		t.Fatalf("expected exit status 1")
	}
}

func TestWaitCommand_RejectsBadEndpoint(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{}, mapLookup(map[string]string{
		"PROVISIONER_READINESS_ENDPOINTS": "no-port",
	}))
	root.SetArgs([]string{"wait"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected invalid endpoint to fail")
	}
}
