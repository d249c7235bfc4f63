package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const metricPrefix = "provisioning."

// operationTagFields are the observed fields promoted to metric tags. Keep the
// set small: every value becomes a label.
var operationTagFields = []string{"store_type", "lease_status"}

// NopMetricsRecorder discards every measurement.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// recordOperation emits the per-operation counter and latency histogram.
func (s *Service) recordOperation(
	ctx context.Context,
	operation string,
	status string,
	elapsed time.Duration,
	err error,
	fields map[string]any,
) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	tags := operationTags(operation, status, err, fields)
	s.metricsRecorder.IncCounter(ctx, operationMetric(operation, "total"), 1, cloneTags(tags))
	s.metricsRecorder.ObserveHistogram(ctx, operationMetric(operation, "duration_ms"), float64(elapsed.Milliseconds()), cloneTags(tags))
}

func operationMetric(operation string, suffix string) string {
	return metricPrefix + strings.TrimSpace(operation) + "." + suffix
}

func operationTags(operation string, status string, err error, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range operationTagFields {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" {
			tags[key] = value
		}
	}
	if kind := Kind(err); kind != KindNone {
		tags["error_kind"] = string(kind)
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}
