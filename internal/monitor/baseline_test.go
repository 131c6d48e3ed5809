package monitor

import (
	"errors"
	"testing"
	"time"
)

func float64Ptr(v float64) *float64 { return &v }

func TestFileBaselineStoreRoundtrip(t *testing.T) {
	store := NewFileBaselineStore(t.TempDir())

	loaded, err := store.Load("staging")
	if err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil baseline when no file exists")
	}

	baseline := &Baseline{
		Environment:   "staging",
		Values:        map[string]float64{"error_rate": 1.5},
		EstablishedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(baseline); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err = store.Load("staging")
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected stored baseline")
	}
	if loaded.Values["error_rate"] != 1.5 {
		t.Errorf("error_rate = %v, want 1.5", loaded.Values["error_rate"])
	}
	if !loaded.EstablishedAt.Equal(baseline.EstablishedAt) {
		t.Errorf("EstablishedAt = %v, want %v", loaded.EstablishedAt, baseline.EstablishedAt)
	}
}

func TestBaselineTrackerEstablishesOnce(t *testing.T) {
	tracker := NewBaselineTracker(NewFileBaselineStore(t.TempDir()), testLogger())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first, err := tracker.Ensure("prod", MetricSnapshot{
		"error_rate":  float64Ptr(1.0),
		"p95_latency": nil,
	}, now)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	if first == nil {
		t.Fatal("expected baseline from first usable snapshot")
	}
	if first.Values["error_rate"] != 1.0 {
		t.Errorf("error_rate = %v, want 1.0", first.Values["error_rate"])
	}
	if first.Values["p95_latency"] != 0 {
		t.Errorf("nil metric should be recorded as 0, got %v", first.Values["p95_latency"])
	}

	// Later, worse readings must never move the baseline.
	second, err := tracker.Ensure("prod", MetricSnapshot{
		"error_rate": float64Ptr(50.0),
	}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if second != first {
		t.Error("Ensure should return the already-established baseline")
	}
	if second.Values["error_rate"] != 1.0 {
		t.Errorf("baseline mutated: error_rate = %v", second.Values["error_rate"])
	}
}

func TestBaselineTrackerSkipsEmptySnapshot(t *testing.T) {
	tracker := NewBaselineTracker(NewFileBaselineStore(t.TempDir()), testLogger())
	now := time.Now()

	baseline, err := tracker.Ensure("prod", MetricSnapshot{"error_rate": nil}, now)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if baseline != nil {
		t.Fatal("snapshot with no observed metrics must not establish a baseline")
	}

	// The next usable snapshot establishes it.
	baseline, err = tracker.Ensure("prod", MetricSnapshot{"error_rate": float64Ptr(2.0)}, now)
	if err != nil {
		t.Fatalf("Ensure with usable snapshot: %v", err)
	}
	if baseline == nil || baseline.Values["error_rate"] != 2.0 {
		t.Fatalf("baseline = %+v, want error_rate 2.0", baseline)
	}
}

func TestBaselineTrackerReusesStoredBaseline(t *testing.T) {
	dir := t.TempDir()
	store := NewFileBaselineStore(dir)

	stored := &Baseline{
		Environment:   "prod",
		Values:        map[string]float64{"error_rate": 0.5},
		EstablishedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(stored); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	tracker := NewBaselineTracker(NewFileBaselineStore(dir), testLogger())
	baseline, err := tracker.Ensure("prod", MetricSnapshot{"error_rate": float64Ptr(9.0)}, time.Now())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if baseline == nil {
		t.Fatal("expected stored baseline")
	}
	if baseline.Values["error_rate"] != 0.5 {
		t.Errorf("error_rate = %v, want stored 0.5", baseline.Values["error_rate"])
	}
}

type failingStore struct{ err error }

func (s failingStore) Load(string) (*Baseline, error) { return nil, s.err }
func (s failingStore) Save(*Baseline) error           { return s.err }

func TestBaselineTrackerStoreFailure(t *testing.T) {
	storeErr := errors.New("disk full")
	tracker := NewBaselineTracker(failingStore{err: storeErr}, testLogger())

	_, err := tracker.Ensure("prod", MetricSnapshot{"error_rate": float64Ptr(1.0)}, time.Now())
	if err == nil {
		t.Fatal("expected error when the store fails")
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("error %v should wrap the store error", err)
	}
}
