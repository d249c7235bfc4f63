// Package prometheus exports provisioning operation metrics through
// client_golang.
package prometheus

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-provisioning/core"
)

const defaultNamespace = "provisioner"

// Labels carried by every series. Tags outside this set are dropped and
// missing ones are exported empty, so each metric keeps one label schema.
var labelNames = []string{"operation", "status", "store_type", "lease_status", "error_kind"}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Recorder implements core.MetricsRecorder. Metric names such as
// "provisioning.create_account.total" become "provisioner_provisioning_create_account_total".
type Recorder struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if trimmed := strings.TrimSpace(namespace); trimmed != "" {
			r.namespace = sanitizeName(trimmed)
		}
	}
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func New(opts ...Option) *Recorder {
	recorder := &Recorder{
		namespace:  defaultNamespace,
		registry:   prometheus.NewRegistry(),
		buckets:    defaultBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      r.registry,
	})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter := r.counter(name)
	if counter == nil {
		return
	}
	counter.WithLabelValues(labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(name)
	if histogram == nil {
		return
	}
	histogram.WithLabelValues(labelValues(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) *prometheus.CounterVec {
	metric := r.metricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[metric]; ok {
		return existing
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metric,
		Help: "Provisioning operation counter " + name + ".",
	}, labelNames)
	if err := r.registry.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if vec, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				r.counters[metric] = vec
				return vec
			}
		}
		return nil
	}
	r.counters[metric] = counter
	return counter
}

func (r *Recorder) histogram(name string) *prometheus.HistogramVec {
	metric := r.metricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[metric]; ok {
		return existing
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metric,
		Help:    "Provisioning operation histogram " + name + ".",
		Buckets: r.buckets,
	}, labelNames)
	if err := r.registry.Register(histogram); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if vec, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				r.histograms[metric] = vec
				return vec
			}
		}
		return nil
	}
	r.histograms[metric] = histogram
	return histogram
}

func (r *Recorder) metricName(name string) string {
	sanitized := sanitizeName(name)
	if sanitized == "" {
		return ""
	}
	return r.namespace + "_" + sanitized
}

func labelValues(tags map[string]string) []string {
	values := make([]string, len(labelNames))
	for i, label := range labelNames {
		values[i] = tags[label]
	}
	return values
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
