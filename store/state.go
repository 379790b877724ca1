package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fbasourcing/go-source-fba/models"
)

// StateStore persists the resume record as {supplier}_processing_state.json.
type StateStore struct {
	path string
}

// NewStateStore places the state file under dir.
func NewStateStore(dir, supplierName string) *StateStore {
	return &StateStore{
		path: filepath.Join(dir, fmt.Sprintf("%s_processing_state.json", supplierName)),
	}
}

// Load returns the persisted state, or a zeroed state when none exists yet.
func (s *StateStore) Load() (*models.ProcessingState, error) {
	state := models.NewProcessingState()
	if err := readJSON(s.path, state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewProcessingState(), nil
		}
		return nil, fmt.Errorf("load processing state: %w", err)
	}
	if state.FailedStages == nil {
		state.FailedStages = make(map[string]string)
	}
	return state, nil
}

// Save persists the state atomically.
func (s *StateStore) Save(state *models.ProcessingState) error {
	if err := AtomicWriteJSON(s.path, state); err != nil {
		return fmt.Errorf("save processing state: %w", err)
	}
	return nil
}
