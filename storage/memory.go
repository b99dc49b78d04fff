package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/macrador/distill/types"
)

// MemoryStore is an in-memory Store used by tests and demos. All reads
// return deep copies so callers cannot mutate stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]types.Run
	messages map[string][]types.Message
	events   map[string][]types.Event
	wm       map[string]*types.WorkingMemory
	ltm      map[string]*types.LongTermMemory
	metrics  map[string]types.Metrics
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     map[string]types.Run{},
		messages: map[string][]types.Message{},
		events:   map[string][]types.Event{},
		wm:       map[string]*types.WorkingMemory{},
		ltm:      map[string]*types.LongTermMemory{},
		metrics:  map[string]types.Metrics{},
	}
}

// CreateRun implements Store.
func (s *MemoryStore) CreateRun(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// GetRun implements Store.
func (s *MemoryStore) GetRun(_ context.Context, runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

// UpdateRun implements Store.
func (s *MemoryStore) UpdateRun(_ context.Context, runID string, stepIndex int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.StepIndex = stepIndex
	run.UpdatedAt = updatedAt
	s.runs[runID] = run
	return nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(_ context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.RunID] = append(s.messages[msg.RunID], *msg)
	return nil
}

// ListMessages implements Store.
func (s *MemoryStore) ListMessages(_ context.Context, runID string, limit int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = normalizeLimit(limit, DefaultMessageLimit)

	msgs := s.messages[runID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSTMTail implements Store.
func (s *MemoryStore) ListSTMTail(ctx context.Context, runID string, limit int) ([]types.Message, error) {
	all, err := s.ListMessages(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// AppendEvent implements Store.
func (s *MemoryStore) AppendEvent(_ context.Context, event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RunID] = append(s.events[event.RunID], *event)
	return nil
}

// ListEvents implements Store.
func (s *MemoryStore) ListEvents(_ context.Context, runID string, limit int) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = normalizeLimit(limit, DefaultEventLimit)

	events := s.events[runID]
	out := make([]types.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetWorkingMemory implements Store.
func (s *MemoryStore) SetWorkingMemory(_ context.Context, runID string, wm *types.WorkingMemory) error {
	clone, err := cloneJSON(wm)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wm[runID] = clone
	return nil
}

// GetWorkingMemory implements Store.
func (s *MemoryStore) GetWorkingMemory(_ context.Context, runID string) (*types.WorkingMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wm, ok := s.wm[runID]
	if !ok {
		return nil, nil
	}
	return cloneJSON(wm)
}

// SetLongTermMemory implements Store.
func (s *MemoryStore) SetLongTermMemory(_ context.Context, runID string, ltm *types.LongTermMemory) error {
	clone, err := cloneJSON(ltm)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ltm[runID] = clone
	return nil
}

// GetLongTermMemory implements Store.
func (s *MemoryStore) GetLongTermMemory(_ context.Context, runID string) (*types.LongTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ltm, ok := s.ltm[runID]
	if !ok {
		return nil, nil
	}
	return cloneJSON(ltm)
}

// SetMetrics implements Store.
func (s *MemoryStore) SetMetrics(_ context.Context, runID string, metrics *types.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[runID] = *metrics
	return nil
}

// GetMetrics implements Store.
func (s *MemoryStore) GetMetrics(_ context.Context, runID string) (*types.Metrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.metrics[runID]
	return &m, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneJSON[T any](v *T) (*T, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
