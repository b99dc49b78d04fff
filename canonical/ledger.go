// Package canonical implements the durable memory artifacts: the strict
// canonical ledger file and the per-run snapshot directory. The canonical
// ledger is the single authoritative on-disk record, independent of and
// secondary to the richer per-run working-memory store.
package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/macrador/distill/memory"
	"github.com/macrador/distill/types"
)

// ErrInvalidLedger is returned when an object does not satisfy the strict
// canonical schema.
var ErrInvalidLedger = errors.New("invalid canonical ledger")

// strictKeys is the exact key set of the canonical schema. Any other
// shape is a validation failure.
var strictKeys = []string{"facts", "decisions", "constraints", "open_loops", "superseded"}

// Logger is the minimal logging surface the persister needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Ledger is the strict on-disk form of canonical memory: exactly these
// five sections, each a list. Definitions, assumptions, dropped entries
// and timestamps are transient runtime state and are never persisted here.
type Ledger struct {
	Facts       []types.MemoryItem     `json:"facts"`
	Decisions   []types.MemoryItem     `json:"decisions"`
	Constraints []types.MemoryItem     `json:"constraints"`
	OpenLoops   []types.OpenLoopItem   `json:"open_loops"`
	Superseded  []types.SupersededEdge `json:"superseded"`
}

// EmptyLedger returns a schema-valid ledger with all sections allocated.
func EmptyLedger() *Ledger {
	return &Ledger{
		Facts:       []types.MemoryItem{},
		Decisions:   []types.MemoryItem{},
		Constraints: []types.MemoryItem{},
		OpenLoops:   []types.OpenLoopItem{},
		Superseded:  []types.SupersededEdge{},
	}
}

// Validate checks the strict schema: every section must be present as a
// list. A nil section would serialize as null rather than a list, which
// downstream readers reject.
func (l *Ledger) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: ledger is nil", ErrInvalidLedger)
	}
	if l.Facts == nil || l.Decisions == nil || l.Constraints == nil || l.OpenLoops == nil || l.Superseded == nil {
		return fmt.Errorf("%w: every section must be a list", ErrInvalidLedger)
	}
	return nil
}

// FromWorkingMemory projects the runtime working memory onto the strict
// schema: facts, decisions, constraints and open loops are copied
// verbatim; superseded edges are recomputed from per-item supersession
// fields. Definitions, assumptions, dropped and updated_at are dropped by
// design and cannot be recovered from the canonical form alone.
func FromWorkingMemory(wm *types.WorkingMemory) *Ledger {
	if wm == nil {
		return EmptyLedger()
	}
	return &Ledger{
		Facts:       orEmpty(wm.Facts),
		Decisions:   orEmpty(wm.Decisions),
		Constraints: orEmpty(wm.Constraints),
		OpenLoops:   orEmpty(wm.OpenLoops),
		Superseded:  memory.DeriveSuperseded(wm),
	}
}

// Persister reads and writes the canonical ledger file with crash-safe
// semantics: saves go through a temporary file and an atomic rename, and a
// corrupted file is backed up and reinitialized rather than propagated.
//
// The file has no cross-process lock; concurrent writers are last-writer-
// wins and callers needing isolation must serialize externally.
type Persister struct {
	path   string
	logger Logger
}

// NewPersister creates a persister for the ledger file at path.
func NewPersister(path string, logger Logger) *Persister {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Persister{path: path, logger: logger}
}

// Path returns the ledger file location.
func (p *Persister) Path() string {
	return p.path
}

// Load returns the canonical ledger. A missing file is initialized to the
// empty schema. A file that fails validation (malformed encoding or wrong
// key set) is renamed to a timestamped backup — best effort, a failed
// rename is logged and ignored — and the ledger is reinitialized. The only
// error Load can return is a failure to write the reinitialized file.
func (p *Persister) Load() (*Ledger, error) {
	raw, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		ledger := EmptyLedger()
		if werr := p.write(ledger); werr != nil {
			return nil, werr
		}
		return ledger, nil
	}
	if err == nil {
		if ledger, perr := parseStrict(raw); perr == nil {
			return ledger, nil
		} else {
			p.logger.Warn("canonical ledger failed validation, reinitializing", "path", p.path, "error", perr)
		}
	}

	// Corrupt or unreadable: preserve a backup, then reset.
	backup := fmt.Sprintf("%s.corrupt.%s", p.path, time.Now().UTC().Format(timestampLayout))
	if rerr := os.Rename(p.path, backup); rerr != nil {
		p.logger.Warn("canonical ledger backup failed", "path", p.path, "error", rerr)
	}

	ledger := EmptyLedger()
	if werr := p.write(ledger); werr != nil {
		return nil, werr
	}
	return ledger, nil
}

// Save validates the ledger and writes it atomically. Invalid objects are
// rejected outright; the caller must fix the object.
func (p *Persister) Save(ledger *Ledger) error {
	if err := ledger.Validate(); err != nil {
		return err
	}
	return p.write(ledger)
}

// write serializes through a temporary file followed by an atomic rename,
// so a crash mid-write cannot leave a truncated canonical file.
func (p *Persister) write(ledger *Ledger) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// parseStrict decodes raw bytes, enforcing the exact five-key schema with
// each key holding a list.
func parseStrict(raw []byte) (*Ledger, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLedger, err)
	}

	if len(shape) != len(strictKeys) {
		return nil, fmt.Errorf("%w: expected exactly keys %v", ErrInvalidLedger, strictKeys)
	}
	for _, k := range strictKeys {
		section, ok := shape[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidLedger, k)
		}
		var list []json.RawMessage
		if err := json.Unmarshal(section, &list); err != nil {
			return nil, fmt.Errorf("%w: key %q must be a list", ErrInvalidLedger, k)
		}
	}

	var ledger Ledger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLedger, err)
	}
	if err := ledger.Validate(); err != nil {
		return nil, err
	}
	return &ledger, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
