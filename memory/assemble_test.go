package memory

import (
	"strings"
	"testing"

	"github.com/macrador/distill/types"
)

func testWorkingMemory() *types.WorkingMemory {
	wm := types.NewWorkingMemory()
	wm.Facts = []types.MemoryItem{
		{ID: "mem_f1", Text: "latency budget is 200ms", Status: types.StatusActive},
		{ID: "mem_f2", Text: "service runs in two regions", Status: types.StatusActive},
	}
	wm.Decisions = []types.MemoryItem{
		{ID: "mem_d1", Text: "use write-ahead logging", Status: types.StatusActive},
	}
	wm.Constraints = []types.MemoryItem{
		{ID: "mem_c1", Text: "no external network calls", Status: types.StatusActive},
	}
	wm.Definitions = []types.DefinitionItem{
		{Term: "CWM", Definition: "compressed working memory", Status: types.StatusActive},
	}
	return wm
}

func TestAssembleContext(t *testing.T) {
	t.Run("fixed priority order", func(t *testing.T) {
		sel := &types.Selection{
			FactIDs:         []string{"mem_f1"},
			DecisionIDs:     []string{"mem_d1"},
			ConstraintIDs:   []string{"mem_c1"},
			DefinitionTerms: []string{"CWM"},
		}
		blocks := AssembleContext(sel, testWorkingMemory())
		if len(blocks) != 4 {
			t.Fatalf("got %d blocks, want 4", len(blocks))
		}
		wantLabels := []string{"CONSTRAINTS", "DEFINITIONS", "DECISIONS", "FACTS"}
		for i, label := range wantLabels {
			if !strings.HasPrefix(blocks[i].Content, label+":") {
				t.Errorf("block %d = %q, want prefix %s:", i, blocks[i].Content, label)
			}
			if blocks[i].Role != types.RoleSystem {
				t.Errorf("block %d role = %q, want system", i, blocks[i].Role)
			}
		}
	})

	t.Run("empty categories emit no block", func(t *testing.T) {
		sel := &types.Selection{FactIDs: []string{"mem_f2"}}
		blocks := AssembleContext(sel, testWorkingMemory())
		if len(blocks) != 1 {
			t.Fatalf("got %d blocks, want 1", len(blocks))
		}
		if !strings.HasPrefix(blocks[0].Content, "FACTS:") {
			t.Errorf("block = %q, want FACTS:", blocks[0].Content)
		}
		if !strings.Contains(blocks[0].Content, "service runs in two regions") {
			t.Errorf("block missing resolved item text: %q", blocks[0].Content)
		}
	})

	t.Run("unknown ids are skipped", func(t *testing.T) {
		sel := &types.Selection{FactIDs: []string{"mem_missing"}}
		if blocks := AssembleContext(sel, testWorkingMemory()); len(blocks) != 0 {
			t.Errorf("got %d blocks, want 0", len(blocks))
		}
	})

	t.Run("nil selection or memory", func(t *testing.T) {
		if blocks := AssembleContext(nil, testWorkingMemory()); len(blocks) != 0 {
			t.Errorf("nil selection: got %d blocks, want 0", len(blocks))
		}
		if blocks := AssembleContext(&types.Selection{}, nil); len(blocks) != 0 {
			t.Errorf("nil memory: got %d blocks, want 0", len(blocks))
		}
	})

	t.Run("selection order within a category is preserved", func(t *testing.T) {
		sel := &types.Selection{FactIDs: []string{"mem_f2", "mem_f1"}}
		blocks := AssembleContext(sel, testWorkingMemory())
		if len(blocks) != 1 {
			t.Fatalf("got %d blocks, want 1", len(blocks))
		}
		first := strings.Index(blocks[0].Content, "mem_f2")
		second := strings.Index(blocks[0].Content, "mem_f1")
		if first < 0 || second < 0 || first > second {
			t.Errorf("resolved items out of selection order: %q", blocks[0].Content)
		}
	})
}

func TestBlocksBlob(t *testing.T) {
	blocks := []types.ContextBlock{
		{Role: types.RoleSystem, Content: "A"},
		{Role: types.RoleSystem, Content: "B"},
	}
	if got := BlocksBlob(blocks); got != "A\nB" {
		t.Errorf("BlocksBlob = %q, want %q", got, "A\nB")
	}
	if got := BlocksBlob(nil); got != "" {
		t.Errorf("BlocksBlob(nil) = %q, want empty", got)
	}
}
