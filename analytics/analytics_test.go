package analytics_test

import (
	"reflect"
	"sync"
	"testing"
	"time"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/analytics"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newDataset(t *testing.T, cfg analytics.Config) *analytics.Dataset {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = testutils.NewManualClock(base).Clock()
	}
	dataset, err := analytics.New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return dataset
}

func TestDatasetWrite(t *testing.T) {
	clock := testutils.NewManualClock(base)
	clock.AutoAdvance(time.Minute)
	dataset := newDataset(t, analytics.Config{Clock: clock.Clock()})

	dataset.WriteDataPoint(&analytics.DataPoint{
		Indexes: []string{"dye-lookup"},
		Doubles: []float64{1, 2.5},
		Blobs:   [][]byte{[]byte("snow white")},
		// Caller-set timestamps are overwritten at write time.
		Timestamp: base.Add(-time.Hour),
	})
	dataset.WriteDataPoint(nil)

	points := dataset.DataPoints()
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}

	if !reflect.DeepEqual(points[0].Indexes, []string{"dye-lookup"}) {
		t.Errorf("Unexpected indexes: %v", points[0].Indexes)
	}
	if !reflect.DeepEqual(points[0].Doubles, []float64{1, 2.5}) {
		t.Errorf("Unexpected doubles: %v", points[0].Doubles)
	}
	if string(points[0].Blobs[0]) != "snow white" {
		t.Errorf("Unexpected blob: %q", points[0].Blobs[0])
	}
	if !points[0].Timestamp.Equal(base) {
		t.Errorf("Expected write-time stamp %v, got %v", base, points[0].Timestamp)
	}

	// The nil point lands empty but stamped.
	if points[1].Indexes != nil || points[1].Doubles != nil || points[1].Blobs != nil {
		t.Errorf("Expected empty point for nil write, got %+v", points[1])
	}
	if !points[1].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("Expected advancing stamp, got %v", points[1].Timestamp)
	}

	if dataset.Len() != 2 {
		t.Errorf("Expected Len 2, got %d", dataset.Len())
	}
}

func TestDatasetDeepCopies(t *testing.T) {
	dataset := newDataset(t, analytics.Config{})

	point := &analytics.DataPoint{
		Indexes: []string{"original"},
		Blobs:   [][]byte{[]byte("blob")},
	}
	dataset.WriteDataPoint(point)

	// Mutating the caller's point after the write changes nothing.
	point.Indexes[0] = "mutated"
	point.Blobs[0][0] = 'X'

	stored := dataset.DataPoints()[0]
	if stored.Indexes[0] != "original" {
		t.Errorf("Stored point aliases caller slice: %v", stored.Indexes)
	}
	if string(stored.Blobs[0]) != "blob" {
		t.Errorf("Stored point aliases caller blob: %q", stored.Blobs[0])
	}

	// Mutating a returned point changes nothing either.
	stored.Indexes[0] = "mutated again"
	stored.Blobs[0][0] = 'Y'
	if got := dataset.DataPoints()[0]; got.Indexes[0] != "original" || string(got.Blobs[0]) != "blob" {
		t.Errorf("Returned point aliases stored state: %+v", got)
	}
}

func TestDatasetBounded(t *testing.T) {
	dataset := newDataset(t, analytics.Config{MaxDataPoints: 3})

	for i := 0; i < 5; i++ {
		dataset.WriteDataPoint(&analytics.DataPoint{Doubles: []float64{float64(i)}})
	}

	points := dataset.DataPoints()
	if len(points) != 3 {
		t.Fatalf("Expected log capped at 3, got %d", len(points))
	}
	if points[0].Doubles[0] != 2 || points[2].Doubles[0] != 4 {
		t.Errorf("Expected newest points retained, got %v", points)
	}
}

func TestDatasetReset(t *testing.T) {
	dataset := newDataset(t, analytics.Config{})
	dataset.WriteDataPoint(&analytics.DataPoint{Indexes: []string{"x"}})
	dataset.WriteDataPoint(nil)

	dataset.Reset()

	if dataset.Len() != 0 {
		t.Errorf("Expected empty dataset after reset, got %d", dataset.Len())
	}
	if points := dataset.DataPoints(); len(points) != 0 {
		t.Errorf("Expected no points after reset, got %v", points)
	}
}

func TestDatasetConcurrent(t *testing.T) {
	dataset := newDataset(t, analytics.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			dataset.WriteDataPoint(&analytics.DataPoint{Doubles: []float64{float64(n)}})
			dataset.DataPoints()
		}(i)
	}
	wg.Wait()

	if dataset.Len() != 50 {
		t.Errorf("Expected 50 points, got %d", dataset.Len())
	}
}
