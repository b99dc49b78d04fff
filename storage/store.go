// Package storage provides the persistence backend consumed by the
// orchestrator: run records, append-only message and event logs, latest
// working/long-term memory, and per-run metrics.
//
// The backend is a collaborator interface so the orchestrator never holds
// a process-wide database handle; tests substitute MemoryStore.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/macrador/distill/types"
)

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Default read bounds, matching the orchestrator's transcript window.
const (
	DefaultMessageLimit = 500
	DefaultEventLimit   = 500
)

// Store is the persistence backend. Individual writes are serialized by
// the backend, but no cross-document transaction spans a full turn; a
// crash between message append and compression leaves recoverable partial
// state that the next compression catches up on by re-reading the
// transcript.
type Store interface {
	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *types.Run) error

	// GetRun returns the run, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*types.Run, error)

	// UpdateRun persists the run's new step index and updated timestamp.
	UpdateRun(ctx context.Context, runID string, stepIndex int, updatedAt time.Time) error

	// AppendMessage appends one transcript entry. Messages are never
	// updated or deleted.
	AppendMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns up to limit messages in ascending timestamp
	// order. limit <= 0 applies DefaultMessageLimit.
	ListMessages(ctx context.Context, runID string, limit int) ([]types.Message, error)

	// ListSTMTail returns the most recent limit messages in chronological
	// order (last K, then reversed).
	ListSTMTail(ctx context.Context, runID string, limit int) ([]types.Message, error)

	// AppendEvent appends one audit trail entry.
	AppendEvent(ctx context.Context, event *types.Event) error

	// ListEvents returns up to limit events in ascending timestamp order.
	ListEvents(ctx context.Context, runID string, limit int) ([]types.Event, error)

	// SetWorkingMemory stores the run's latest working memory.
	SetWorkingMemory(ctx context.Context, runID string, wm *types.WorkingMemory) error

	// GetWorkingMemory returns the latest working memory, or nil when the
	// run has never been compressed.
	GetWorkingMemory(ctx context.Context, runID string) (*types.WorkingMemory, error)

	// SetLongTermMemory stores the run's latest long-term memory.
	SetLongTermMemory(ctx context.Context, runID string, ltm *types.LongTermMemory) error

	// GetLongTermMemory returns the latest long-term memory, or nil.
	GetLongTermMemory(ctx context.Context, runID string) (*types.LongTermMemory, error)

	// SetMetrics stores the run's latest metrics.
	SetMetrics(ctx context.Context, runID string, metrics *types.Metrics) error

	// GetMetrics returns the latest metrics, or a zero value when none
	// have been recorded.
	GetMetrics(ctx context.Context, runID string) (*types.Metrics, error)

	// Close releases backend resources.
	Close() error
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
