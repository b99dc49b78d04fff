package canonical

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/macrador/distill/types"
)

// timestampLayout names snapshot files (and ledger backups) with a UTC
// timestamp whose lexicographic order equals its chronological order.
const timestampLayout = "20060102T150405Z"

// SnapshotStore writes immutable point-in-time snapshots, one append-only
// directory per run.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates a snapshot store rooted at dir.
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Write persists one snapshot file and returns its path. Files are named
// by UTC timestamp so "latest" is simply the lexicographically newest.
func (s *SnapshotStore) Write(snap *types.Snapshot) (string, error) {
	runDir := filepath.Join(s.dir, snap.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	// The layout has second granularity; two compressions within one
	// second would collide on the same name. Advance until free so every
	// compression keeps its own immutable file, still in order.
	var path string
	for ts := time.Now().UTC(); ; ts = ts.Add(time.Second) {
		path = filepath.Join(runDir, ts.Format(timestampLayout)+".json")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Latest returns the newest snapshot for the run, or nil when the run has
// no snapshots.
func (s *SnapshotStore) Latest(runID string) (*types.Snapshot, error) {
	runDir := filepath.Join(s.dir, runID)
	entries, err := os.ReadDir(runDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	raw, err := os.ReadFile(filepath.Join(runDir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
