package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LogEntry is one point in the trainer's log history: a training-loss report
// or an evaluation result.
type LogEntry struct {
	Step    int     `json:"step"`
	Epoch   int     `json:"epoch"`
	Loss    float64 `json:"loss,omitempty"`
	LR      float64 `json:"learning_rate,omitempty"`
	Metrics Metrics `json:"metrics,omitempty"`
}

// State is the trainer's bookkeeping: persisted alongside checkpoints and at
// the end of a run so training can resume and runs can be inspected.
type State struct {
	GlobalStep int        `json:"global_step"`
	Epoch      int        `json:"epoch"`
	LogHistory []LogEntry `json:"log_history"`
}

const stateFileName = "trainer_state.json"

// Save writes the state as trainer_state.json under dir.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("train: create %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("train: marshal state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), raw, 0o644); err != nil {
		return fmt.Errorf("train: write state: %w", err)
	}
	return nil
}

// LoadState reads trainer_state.json from dir.
func LoadState(dir string) (*State, error) {
	raw, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return nil, fmt.Errorf("train: read state: %w", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("train: parse state: %w", err)
	}
	return &s, nil
}
