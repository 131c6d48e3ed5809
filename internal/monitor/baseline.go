package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// BaselineStore persists baselines across monitoring sessions for the same
// environment.
type BaselineStore interface {
	Load(environment string) (*Baseline, error)
	Save(baseline *Baseline) error
}

// FileBaselineStore keeps one JSON file per environment under a state
// directory.
type FileBaselineStore struct {
	dir string
}

func NewFileBaselineStore(dir string) *FileBaselineStore {
	return &FileBaselineStore{dir: dir}
}

func (s *FileBaselineStore) path(environment string) string {
	return filepath.Join(s.dir, fmt.Sprintf("baseline_%s.json", environment))
}

// Load returns nil without error when no baseline exists yet.
func (s *FileBaselineStore) Load(environment string) (*Baseline, error) {
	raw, err := os.ReadFile(s.path(environment))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline file: %w", err)
	}

	baseline := &Baseline{}
	if err := json.Unmarshal(raw, baseline); err != nil {
		return nil, fmt.Errorf("parse baseline file: %w", err)
	}

	return baseline, nil
}

func (s *FileBaselineStore) Save(baseline *Baseline) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}

	raw, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}

	if err := os.WriteFile(s.path(baseline.Environment), raw, 0o644); err != nil {
		return fmt.Errorf("write baseline file: %w", err)
	}

	return nil
}

// BaselineTracker establishes the comparison baseline exactly once per
// environment. It is the only component allowed to create a baseline;
// calling Ensure after one exists is a no-op.
type BaselineTracker struct {
	store   BaselineStore
	log     *logger.Logger
	current *Baseline
}

func NewBaselineTracker(store BaselineStore, log *logger.Logger) *BaselineTracker {
	return &BaselineTracker{store: store, log: log}
}

// Ensure returns the baseline for the environment, creating it from the
// snapshot when none exists. A snapshot with no numeric values does not
// establish a baseline; the next successful collection will.
func (t *BaselineTracker) Ensure(environment string, snapshot MetricSnapshot, now time.Time) (*Baseline, error) {
	if t.current != nil {
		return t.current, nil
	}

	stored, err := t.store.Load(environment)
	if err != nil {
		return nil, fmt.Errorf("load baseline for %s: %w", environment, err)
	}
	if stored != nil {
		t.log.Info("Reusing stored baseline",
			"environment", environment,
			"established_at", stored.EstablishedAt.Format(time.RFC3339),
		)
		t.current = stored
		return t.current, nil
	}

	if !snapshotUsable(snapshot) {
		return nil, nil
	}

	baseline := &Baseline{
		Environment:   environment,
		Values:        make(map[string]float64, len(snapshot)),
		EstablishedAt: now.UTC(),
	}
	for name, value := range snapshot {
		if value != nil {
			baseline.Values[name] = *value
		} else {
			baseline.Values[name] = 0
		}
	}

	if err := t.store.Save(baseline); err != nil {
		return nil, fmt.Errorf("persist baseline for %s: %w", environment, err)
	}

	t.log.Info("Baseline established",
		"environment", environment,
		"metrics", len(baseline.Values),
	)
	t.current = baseline
	return t.current, nil
}

// snapshotUsable reports whether at least one metric was actually observed.
func snapshotUsable(snapshot MetricSnapshot) bool {
	for _, value := range snapshot {
		if value != nil {
			return true
		}
	}
	return false
}
