// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Counters and histograms live in a private
// registry; Flush pushes the whole registry under the job's grouping key.
package prompush

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"geoingest/internal/metrics"
)

// Backend implements metrics.Backend.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewBackend builds a backend that pushes to gatewayURL as job. Each entry of
// grouping ("key=value") is added to the grouping key, e.g. run_id.
func NewBackend(job, gatewayURL string, grouping ...string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}
	if job == "" {
		job = "ingest"
	}
	reg := prometheus.NewRegistry()
	p := push.New(gatewayURL, job).Gatherer(reg)
	for _, g := range grouping {
		k, v, ok := strings.Cut(g, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("prompush: bad grouping %q (want key=value)", g)
		}
		p = p.Grouping(k, v)
	}
	return &Backend{
		reg:        reg,
		pusher:     p,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}, nil
}

func labelNames(l metrics.Labels) []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IncCounter implements metrics.Backend. Calls whose label keys differ from
// the first use of the metric are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
		if err := b.reg.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.counters[name] = vec
	}
	b.mu.Unlock()

	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	vec, ok := b.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, labelNames(labels))
		if err := b.reg.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.histograms[name] = vec
	}
	b.mu.Unlock()

	h, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	h.Observe(value)
}

// Flush pushes the registry, replacing the group's previous metrics.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("pushgateway: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
