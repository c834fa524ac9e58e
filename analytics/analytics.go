/*
Package analytics provides an in-memory emulation of an analytics dataset
binding for tests.

A Dataset accepts data points and keeps them in a bounded append-only log;
nothing is aggregated, validated, or shipped anywhere. Tests write points
through the code under test and assert on the recorded log afterwards:

	dataset, err := analytics.New(analytics.Config{})
	if err != nil {
		// handle error
	}

	dataset.WriteDataPoint(&analytics.DataPoint{
		Indexes: []string{"dye-lookup"},
		Doubles: []float64{1},
		Blobs:   [][]byte{[]byte("snow white")},
	})

	points := dataset.DataPoints()
*/
package analytics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/history"
	"github.com/FlashGalatine/xivdyetools-test-utils/opmetrics"
)

// DefaultMaxDataPoints bounds the data point log when no explicit capacity
// is configured.
const DefaultMaxDataPoints = 1000

const opWrite = "write_data_point"

// DataPoint is one analytics record. All fields are optional.
type DataPoint struct {
	// Indexes holds the indexed dimension values.
	Indexes []string `json:"indexes"`

	// Doubles holds the numeric measurements.
	Doubles []float64 `json:"doubles"`

	// Blobs holds opaque binary dimensions.
	Blobs [][]byte `json:"blobs"`

	// Timestamp is stamped by the dataset at write time; any caller-set
	// value is overwritten.
	Timestamp time.Time `json:"timestamp"`
}

// clone deep-copies the point so stored state never aliases caller slices.
func (p DataPoint) clone() DataPoint {
	out := DataPoint{Timestamp: p.Timestamp}
	if p.Indexes != nil {
		out.Indexes = append([]string(nil), p.Indexes...)
	}
	if p.Doubles != nil {
		out.Doubles = append([]float64(nil), p.Doubles...)
	}
	if p.Blobs != nil {
		out.Blobs = make([][]byte, len(p.Blobs))
		for i, blob := range p.Blobs {
			out.Blobs[i] = append([]byte(nil), blob...)
		}
	}
	return out
}

// Config controls construction of a Dataset.
type Config struct {
	// MaxDataPoints bounds the data point log. Zero or negative values
	// default to DefaultMaxDataPoints.
	MaxDataPoints int

	// Clock supplies write timestamps and defaults to the wall clock.
	Clock testutils.Clock

	// Logger receives debug output. Nil discards all output.
	Logger *slog.Logger

	// Binding names this instance in instrumentation labels.
	Binding string

	// Metrics optionally registers operation counters for this instance.
	Metrics prometheus.Registerer
}

// Dataset is an in-memory analytics sink. All methods are safe for
// concurrent use.
type Dataset struct {
	mu      sync.Mutex
	clock   testutils.Clock
	logger  *slog.Logger
	metrics *opmetrics.Recorder
	points  *history.Log[DataPoint]
}

// Ensure Dataset satisfies the shared reset contract at compile time.
var _ testutils.Resetter = (*Dataset)(nil)

// New creates a Dataset with the provided configuration. The only error
// source is metrics registration.
func New(config Config) (*Dataset, error) {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder, err := opmetrics.New(opmetrics.Config{
		Component: "analytics",
		Binding:   config.Binding,
		Registry:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	capacity := config.MaxDataPoints
	if capacity <= 0 {
		capacity = DefaultMaxDataPoints
	}

	return &Dataset{
		clock:   clock,
		logger:  logger,
		metrics: recorder,
		points:  history.New[DataPoint](capacity),
	}, nil
}

// WriteDataPoint appends a deep copy of point stamped with the current clock
// instant. A nil point records an empty data point; once the log is full the
// oldest point is evicted.
func (d *Dataset) WriteDataPoint(point *DataPoint) {
	var p DataPoint
	if point != nil {
		p = point.clone()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics.Op(opWrite)

	p.Timestamp = d.clock()
	d.points.Append(p)
	d.metrics.SetItems(d.points.Len())
	d.logger.Debug("analytics write",
		"indexes", len(p.Indexes),
		"doubles", len(p.Doubles),
		"blobs", len(p.Blobs))
}

// DataPoints returns the recorded points, oldest first, deep-copied so
// callers can never mutate stored state.
func (d *Dataset) DataPoints() []DataPoint {
	points := d.points.Items()
	for i := range points {
		points[i] = points[i].clone()
	}
	return points
}

// Len returns the number of retained data points.
func (d *Dataset) Len() int {
	return d.points.Len()
}

// Reset drops every recorded data point.
func (d *Dataset) Reset() {
	d.points.Reset()
	d.metrics.SetItems(0)
	d.logger.Debug("analytics reset")
}
