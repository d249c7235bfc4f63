package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_ProvisionSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithStoreClient(StoreTypeRelational, newCountingStoreClient()),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.CreateAccount(ctx, CreateAccountRequest{APIKey: testAPIKey, Name: "tester"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := svc.CreateProject(ctx, ProjectRequest{APIKey: testAPIKey, ProjectName: "proj-a"}); err != nil {
		t.Fatalf("create project: %v", err)
	}

	_, err = svc.ProvisionResource(ctx, ResourceRequest{
		APIKey:      testAPIKey,
		ProjectName: "proj-a",
		StoreType:   StoreTypeRelational,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if !hasCounter(metrics.counters, "provisioning.provision_resource.total", "success") {
		t.Fatalf("expected provisioning.provision_resource.total success counter")
	}
	if !hasHistogram(metrics.histograms, "provisioning.provision_resource.duration_ms", "success") {
		t.Fatalf("expected provisioning.provision_resource.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "provision_resource succeeded", "provision_resource") {
		t.Fatalf("expected provision_resource succeeded structured log")
	}
	for _, record := range logger.snapshot() {
		for _, value := range record.fields {
			if text, ok := value.(string); ok && strings.Contains(text, "secret-") {
				t.Fatalf("expected credentials kept out of logs, got %q in %q", text, record.msg)
			}
		}
	}
}

func TestServiceObservability_RejectedRequestLogsWarning(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.ProvisionResource(context.Background(), ResourceRequest{
		APIKey:      testAPIKey,
		ProjectName: "proj-a",
		StoreType:   StoreTypeRelational,
	})
	if err == nil {
		t.Fatalf("expected provision error for unknown account")
	}
	if !hasCounter(metrics.counters, "provisioning.provision_resource.total", "failure") {
		t.Fatalf("expected provision failure counter")
	}
	if !hasLog(logger.snapshot(), "warn", "provision_resource rejected", "provision_resource") {
		t.Fatalf("expected provision rejected log")
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	richErr := goerrors.New("store timeout", goerrors.CategoryExternal).
		WithCode(503).
		WithTextCode(ProvisioningErrorTransient)
	svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"provision_resource",
		richErr,
		map[string]any{"store_type": "relational"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.level != "error" {
		t.Fatalf("expected error level for transient failure, got %q", last.level)
	}
	if last.fields["error_category"] != "external" {
		t.Fatalf("expected error_category external, got %#v", last.fields["error_category"])
	}
	if last.fields["error_text_code"] != ProvisioningErrorTransient {
		t.Fatalf("expected error_text_code %q, got %#v", ProvisioningErrorTransient, last.fields["error_text_code"])
	}

	found := false
	for _, counter := range metrics.counters {
		if counter.tags["store_type"] == "relational" && counter.tags["error_kind"] == string(KindTransient) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected store_type and error_kind metric tags")
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
