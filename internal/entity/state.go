package entity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StateName is the bookkeeping file kept next to the config.
const StateName = "turtles.state.json"

// Bookkeeping is what is remembered about the last run of an entity.
type Bookkeeping struct {
	LastAccess      time.Time `json:"last_access"`
	NRecordsChanged int       `json:"n_records_changed"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

type State struct {
	Entities map[string]Bookkeeping `json:"entities"`
}

// StatePath returns the bookkeeping file of a config file.
func StatePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), StateName)
}

// ReadState reads bookkeeping, a missing file is an empty state.
func ReadState(path string) (State, error) {
	state := State{Entities: map[string]Bookkeeping{}}
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return State{}, err
	}
	err = json.Unmarshal(contents, &state)
	if err != nil {
		return State{}, err
	}
	if state.Entities == nil {
		state.Entities = map[string]Bookkeeping{}
	}
	return state, nil
}

// Record remembers a finished run. A failed run only sets LastRunID and
// LastError, LastAccess and NRecordsChanged keep describing the last run
// that reached the store.
func (s *State) Record(key, runID string, at time.Time, rowsAppended int, failure error) {
	if s.Entities == nil {
		s.Entities = map[string]Bookkeeping{}
	}
	entry := s.Entities[key]
	entry.LastRunID = runID
	entry.LastError = ""
	if failure != nil {
		entry.LastError = strings.TrimSpace(failure.Error())
	} else {
		entry.LastAccess = at.Truncate(time.Second)
		entry.NRecordsChanged = rowsAppended
	}
	s.Entities[key] = entry
}

// WriteState replaces the bookkeeping file.
func WriteState(path string, state State) error {
	contents, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, append(contents, '\n'), 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
