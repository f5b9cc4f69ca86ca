package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/ScoreForge/internal/domain"
	"github.com/Strob0t/ScoreForge/internal/domain/run"
)

// RunStore holds all run state in process memory, keyed by run ID. Runs are
// non-durable and lost on restart. Every mutation goes through Update, which
// appends one log entry under the run's mutex, keeping log IDs strictly
// increasing and timestamps non-decreasing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*runEntry

	clock func() time.Time
}

type runEntry struct {
	mu        sync.Mutex
	state     run.State
	nextLogID int
	lastTS    time.Time
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*runEntry), clock: time.Now}
}

// Create registers a new run in the preparing state.
func (s *RunStore) Create(runID, repoURL, repoName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return fmt.Errorf("run %s already exists", runID)
	}
	s.runs[runID] = &runEntry{
		state: run.State{
			RunID:    runID,
			RepoURL:  repoURL,
			RepoName: repoName,
			Status:   run.StatusPreparing,
		},
		nextLogID: 1,
	}
	return nil
}

// Update transitions the run to status, appends a log entry with message,
// and applies mutate (which may be nil) to the state, all under the run's
// mutex.
func (s *RunStore) Update(runID string, status run.Status, message string, mutate func(*run.State)) error {
	entry, err := s.entry(runID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	ts := s.clock()
	if ts.Before(entry.lastTS) {
		ts = entry.lastTS
	}
	entry.lastTS = ts

	entry.state.Status = status
	entry.state.LogHistory = append(entry.state.LogHistory, run.LogEntry{
		ID:        entry.nextLogID,
		Message:   message,
		Timestamp: ts,
	})
	entry.nextLogID++

	if mutate != nil {
		mutate(&entry.state)
	}
	return nil
}

// Fail moves the run to the error state with a user-visible message.
func (s *RunStore) Fail(runID, message string) {
	_ = s.Update(runID, run.StatusError, message, func(st *run.State) {
		st.Error = message
	})
}

// Get returns a snapshot of the run state.
func (s *RunStore) Get(runID string) (run.State, error) {
	entry, err := s.entry(runID)
	if err != nil {
		return run.State{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	snapshot := entry.state
	snapshot.LogHistory = append([]run.LogEntry(nil), entry.state.LogHistory...)
	return snapshot, nil
}

func (s *RunStore) entry(runID string) (*runEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	return entry, nil
}
