// Package metrics is a process-wide, backend-agnostic metrics seam.
//
// Core packages call IncCounter/ObserveHistogram; cmd/sfyaml picks a backend
// with SetBackend. Until then every call goes to a no-op backend.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Backends decide which keys they keep.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by sfyaml.
const (
	// ObjectsTotal counts reconciled objects. Labels: category, outcome.
	ObjectsTotal = "sfyaml_objects_total"
	// StatementsTotal counts statements sent to the warehouse. Labels: kind.
	StatementsTotal = "sfyaml_statements_total"
	// CommandTotal counts command invocations. Labels: command, status.
	CommandTotal = "sfyaml_command_total"
	// CommandDurationSeconds observes command wall time. Labels: command, status.
	CommandDurationSeconds = "sfyaml_command_duration_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
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

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// RecordCommand emits the command counter and duration histogram.
func RecordCommand(command, status string, d time.Duration) {
	l := Labels{"command": command, "status": status}
	IncCounter(CommandTotal, 1, l)
	ObserveHistogram(CommandDurationSeconds, d.Seconds(), l)
}
