// Package promfile implements a metrics backend that writes Prometheus text
// exposition files, for pickup by the node_exporter textfile collector.
//
// A converter run is a short-lived batch job with nothing to scrape, so the
// collected values are written once at Flush.
package promfile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/darianmavgo/parquet2sqlite/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var help = map[string]string{
	metrics.FilesTotal:   "Input files processed, partitioned by status.",
	metrics.FileDuration: "Time spent reading and inserting one file, in seconds.",
	metrics.RowsTotal:    "Rows seen per kind (read, inserted, failed).",
}

// Backend collects metrics in a private registry and writes them to path.
type Backend struct {
	path string
	reg  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// Ensure Backend implements metrics.Backend
var _ metrics.Backend = (*Backend)(nil)

// NewBackend returns a backend that writes to the given .prom file on Flush.
func NewBackend(path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("promfile: output path is required")
	}
	return &Backend{
		path:       path,
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

// Registry exposes the underlying registry, mostly for tests.
func (b *Backend) Registry() *prometheus.Registry {
	return b.reg
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: helpFor(name),
		}, labelNames(labels))
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.counters[name] = vec
	}

	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, labelNames(labels))
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.histograms[name] = vec
	}

	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	o.Observe(value)
}

// Flush writes every collected metric to the configured file.
func (b *Backend) Flush() error {
	if err := prometheus.WriteToTextfile(b.path, b.reg); err != nil {
		return fmt.Errorf("promfile: write %s: %w", b.path, err)
	}
	return nil
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return strings.ReplaceAll(name, "_", " ")
}

func labelNames(labels metrics.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
