// Package metrics records operational counters for conversion runs.
//
// It exposes a narrow Backend interface and a process-wide backend that
// defaults to a no-op, so instrumented code never has to check whether
// metrics are enabled. Concrete backends live in subpackages.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush writes out collected metrics, if the backend needs it.
	Flush() error
}

const (
	FilesTotal   = "parquet2sqlite_files_total"
	FileDuration = "parquet2sqlite_file_duration_seconds"
	RowsTotal    = "parquet2sqlite_rows_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordFile counts one processed file and its duration, labelled
// "success" or "failure" depending on err.
func RecordFile(err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"status": status}
	b := current()
	b.IncCounter(FilesTotal, 1, lbls)
	b.ObserveHistogram(FileDuration, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind ("read", "inserted", "failed").
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"kind": kind})
}
