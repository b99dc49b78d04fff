package memory

import (
	"testing"

	"github.com/macrador/distill/types"
)

func TestDeriveSuperseded(t *testing.T) {
	t.Run("nil working memory yields empty list", func(t *testing.T) {
		edges := DeriveSuperseded(nil)
		if len(edges) != 0 {
			t.Errorf("got %d edges, want 0", len(edges))
		}
	})

	t.Run("active items yield no edges", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Facts = []types.MemoryItem{
			{ID: "mem_1", Text: "threshold is 2400", Status: types.StatusActive},
		}
		if edges := DeriveSuperseded(wm); len(edges) != 0 {
			t.Errorf("got %d edges, want 0", len(edges))
		}
	})

	t.Run("deprecated fact with replacement yields one edge", func(t *testing.T) {
		key := types.Ptr("compression.threshold")
		wm := types.NewWorkingMemory()
		wm.Facts = []types.MemoryItem{
			{ID: "mem_1", Key: key, Text: "threshold is 2400", Status: types.StatusDeprecated, SupersededBy: types.Ptr("mem_2")},
			{ID: "mem_2", Key: key, Text: "threshold is 1800", Status: types.StatusActive, Supersedes: []string{"mem_1"}},
		}

		edges := DeriveSuperseded(wm)
		if len(edges) != 1 {
			t.Fatalf("got %d edges, want 1", len(edges))
		}
		e := edges[0]
		if e.Section != "facts" || e.From != "mem_1" || e.To != "mem_2" {
			t.Errorf("edge = %+v, want facts mem_1->mem_2", e)
		}
		if types.Deref(e.Key) != "compression.threshold" {
			t.Errorf("edge key = %q, want compression.threshold", types.Deref(e.Key))
		}
	})

	t.Run("deprecated item without replacement yields no edge", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Decisions = []types.MemoryItem{
			{ID: "mem_3", Text: "use sqlite", Status: types.StatusDeprecated},
		}
		if edges := DeriveSuperseded(wm); len(edges) != 0 {
			t.Errorf("got %d edges, want 0", len(edges))
		}
	})

	t.Run("definitions are addressed by term", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Definitions = []types.DefinitionItem{
			{Term: "CWM", Definition: "old meaning", Status: types.StatusDeprecated, SupersededBy: types.Ptr("CWM")},
		}
		edges := DeriveSuperseded(wm)
		if len(edges) != 1 {
			t.Fatalf("got %d edges, want 1", len(edges))
		}
		if edges[0].Section != "definitions" || edges[0].From != "CWM" {
			t.Errorf("edge = %+v, want definitions CWM", edges[0])
		}
	})

	t.Run("repeated derivation is idempotent", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Constraints = []types.MemoryItem{
			{ID: "mem_a", Text: "old", Status: types.StatusDeprecated, SupersededBy: types.Ptr("mem_b")},
			{ID: "mem_a", Text: "old", Status: types.StatusDeprecated, SupersededBy: types.Ptr("mem_b")},
		}
		if edges := DeriveSuperseded(wm); len(edges) != 1 {
			t.Errorf("got %d edges after duplicate scan, want 1", len(edges))
		}
	})
}
