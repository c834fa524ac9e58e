// Package opmetrics instruments the emulations themselves. Components
// register an operations counter and an item gauge against an optional
// Prometheus registry, which lets a test harness confirm how often each
// binding was exercised and how much state it held. With no registry
// configured the recorder is disabled and every method is a no-op.
package opmetrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "xivdyetools"
	subsystem = "testutils"
)

// Config controls construction of a Recorder.
type Config struct {
	// Component identifies the emulation kind, e.g. "kv" or "service".
	Component string

	// Binding is the binding name of this instance. Instances sharing a
	// registry need distinct bindings or registration fails as duplicate.
	Binding string

	// Registry receives the collectors. A nil Registry disables recording.
	Registry prometheus.Registerer
}

// Recorder tracks operation counts and held-item totals for one component
// instance. A nil Recorder is valid and records nothing.
type Recorder struct {
	ops   *prometheus.CounterVec
	items prometheus.Gauge
}

// New creates and registers a Recorder. When Config.Registry is nil the
// returned Recorder is nil, which callers may use directly. Registration
// failures, such as two instances sharing a component and binding, are
// returned to the caller.
func New(config Config) (*Recorder, error) {
	if config.Registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{
		"component": config.Component,
		"binding":   config.Binding,
	}

	r := &Recorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "operations_total",
			ConstLabels: labels,
			Help:        "Total number of operations served by the emulated binding",
		}, []string{"op"}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "items",
			ConstLabels: labels,
			Help:        "Number of items currently held by the emulated binding",
		}),
	}

	if err := config.Registry.Register(r.ops); err != nil {
		return nil, fmt.Errorf("failed to register operations counter: %w", err)
	}
	if err := config.Registry.Register(r.items); err != nil {
		return nil, fmt.Errorf("failed to register items gauge: %w", err)
	}

	return r, nil
}

// Op counts one operation of the named kind.
func (r *Recorder) Op(name string) {
	if r == nil {
		return
	}
	r.ops.WithLabelValues(name).Inc()
}

// SetItems records the number of items the component currently holds.
func (r *Recorder) SetItems(n int) {
	if r == nil {
		return
	}
	r.items.Set(float64(n))
}
