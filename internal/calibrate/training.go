package calibrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"formscan/internal/checkbox"
)

// Example is one graded checkbox: its measured features and the
// ground-truth label from human review.
type Example struct {
	ID         string                 `json:"id"`
	Page       string                 `json:"page,omitempty"`
	CheckboxID string                 `json:"checkbox_id,omitempty"`
	Features   checkbox.FeatureVector `json:"features"`
	Marked     bool                   `json:"marked"`
	Source     string                 `json:"source,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// TrainingSet holds graded examples for calibration.
type TrainingSet struct {
	mu       sync.RWMutex
	Examples []Example `json:"examples"`
	FilePath string    `json:"-"`

	nextID int
}

// NewTrainingSet creates an empty training set.
func NewTrainingSet() *TrainingSet {
	return &TrainingSet{
		Examples: make([]Example, 0),
		nextID:   1,
	}
}

// LoadTrainingSet loads a training set from a JSON file. A missing
// file is an empty set, not an error.
func LoadTrainingSet(path string) (*TrainingSet, error) {
	ts := NewTrainingSet()
	ts.FilePath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ts, nil
		}
		return nil, fmt.Errorf("read training set: %w", err)
	}

	if err := json.Unmarshal(data, ts); err != nil {
		return nil, fmt.Errorf("parse training set %s: %w", filepath.Base(path), err)
	}

	for _, ex := range ts.Examples {
		var id int
		if _, err := fmt.Sscanf(ex.ID, "ex-%d", &id); err == nil && id >= ts.nextID {
			ts.nextID = id + 1
		}
	}
	return ts, nil
}

// Save persists the training set to its file path.
func (ts *TrainingSet) Save() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if ts.FilePath == "" {
		return fmt.Errorf("no file path set")
	}
	if err := os.MkdirAll(filepath.Dir(ts.FilePath), 0755); err != nil {
		return fmt.Errorf("create training set dir: %w", err)
	}
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize training set: %w", err)
	}
	if err := os.WriteFile(ts.FilePath, data, 0644); err != nil {
		return fmt.Errorf("write training set: %w", err)
	}
	return nil
}

// SetFilePath sets where Save writes.
func (ts *TrainingSet) SetFilePath(path string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.FilePath = path
}

// Add appends a graded example and returns it with its assigned id.
func (ts *TrainingSet) Add(features checkbox.FeatureVector, marked bool, page, checkboxID, source string) Example {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ex := Example{
		ID:         fmt.Sprintf("ex-%04d", ts.nextID),
		Page:       page,
		CheckboxID: checkboxID,
		Features:   features,
		Marked:     marked,
		Source:     source,
		Timestamp:  time.Now(),
	}
	ts.nextID++
	ts.Examples = append(ts.Examples, ex)
	return ex
}

// Remove deletes an example by id.
func (ts *TrainingSet) Remove(id string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for i, ex := range ts.Examples {
		if ex.ID == id {
			ts.Examples = append(ts.Examples[:i], ts.Examples[i+1:]...)
			return true
		}
	}
	return false
}

// Merge appends every example from other, renumbering ids so merged
// sets stay unique. Returns the number of examples added.
func (ts *TrainingSet) Merge(other *TrainingSet) int {
	if other == nil {
		return 0
	}
	other.mu.RLock()
	incoming := make([]Example, len(other.Examples))
	copy(incoming, other.Examples)
	other.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, ex := range incoming {
		ex.ID = fmt.Sprintf("ex-%04d", ts.nextID)
		ts.nextID++
		ts.Examples = append(ts.Examples, ex)
	}
	return len(incoming)
}

// Snapshot returns a copy of the examples, safe to use while the set
// keeps changing.
func (ts *TrainingSet) Snapshot() []Example {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]Example, len(ts.Examples))
	copy(out, ts.Examples)
	return out
}

// Len returns the number of examples.
func (ts *TrainingSet) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.Examples)
}

// MarkedCount returns the number of positive examples.
func (ts *TrainingSet) MarkedCount() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	count := 0
	for _, ex := range ts.Examples {
		if ex.Marked {
			count++
		}
	}
	return count
}

// UnmarkedCount returns the number of negative examples.
func (ts *TrainingSet) UnmarkedCount() int {
	return ts.Len() - ts.MarkedCount()
}
