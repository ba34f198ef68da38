// Package metrics is the vendor-neutral metrics facade used by the ingest
// pipeline. Core code records through the helpers below; a backend
// (Datadog, Prometheus Pushgateway) is installed once by the CLI.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Keep cardinality low.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names shared by all backends.
const (
	RecordsTotal = "etl_records_total"
	BatchesTotal = "etl_batches_total"
	StepTotal    = "etl_step_total"
	StepDuration = "etl_step_duration_seconds"
)

// Record kinds for RecordsTotal.
const (
	KindRead     = "read"
	KindIndexed  = "indexed"
	KindSkipped  = "skipped"
	KindRejected = "rejected"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nop{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush asks the installed backend to submit buffered data.
func Flush() error { return current().Flush() }

// RecordRows counts n rows of the given kind (read, indexed, skipped, rejected).
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one bulk submission and its latency.
func RecordBatch(status string, d time.Duration) {
	b := current()
	b.IncCounter(BatchesTotal, 1, Labels{"status": status})
	b.ObserveHistogram(StepDuration, d.Seconds(), Labels{"step": "bulk", "status": status})
}

// RecordStep counts a pipeline step (recreate_index, file, run) and its latency.
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// Status maps an error to the status label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
