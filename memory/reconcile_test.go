package memory

import (
	"strings"
	"testing"

	"github.com/macrador/distill/types"
)

func TestReconcile(t *testing.T) {
	t.Run("nil sides pass", func(t *testing.T) {
		if err := Reconcile(nil, types.NewWorkingMemory()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := Reconcile(types.NewWorkingMemory(), nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("surviving items pass", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.Facts = []types.MemoryItem{{ID: "mem_1", Text: "a", Status: types.StatusActive}}
		updated := types.NewWorkingMemory()
		updated.Facts = []types.MemoryItem{
			{ID: "mem_1", Text: "a", Status: types.StatusActive},
			{ID: "mem_2", Text: "b", Status: types.StatusActive},
		}
		if err := Reconcile(old, updated); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unaccounted removal fails", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.Facts = []types.MemoryItem{{ID: "mem_1", Text: "a", Status: types.StatusActive}}
		updated := types.NewWorkingMemory()

		err := Reconcile(old, updated)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "facts/mem_1") {
			t.Errorf("error %q does not name facts/mem_1", err)
		}
	})

	t.Run("removal accounted by supersedes reference passes", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.Facts = []types.MemoryItem{{ID: "mem_1", Text: "old value", Status: types.StatusActive}}
		updated := types.NewWorkingMemory()
		updated.Facts = []types.MemoryItem{
			{ID: "mem_2", Text: "new value", Status: types.StatusActive, Supersedes: []string{"mem_1"}},
		}
		if err := Reconcile(old, updated); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("removal accounted by dropped entry passes", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.Assumptions = []types.MemoryItem{{ID: "mem_3", Text: "single region", Status: types.StatusActive}}
		updated := types.NewWorkingMemory()
		updated.Dropped = []types.DroppedItem{{Text: "single region", Reason: "confirmed multi-region"}}
		if err := Reconcile(old, updated); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("removed definition is checked by term", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.Definitions = []types.DefinitionItem{{Term: "CWM", Definition: "x", Status: types.StatusActive}}
		updated := types.NewWorkingMemory()

		err := Reconcile(old, updated)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "definitions/CWM") {
			t.Errorf("error %q does not name definitions/CWM", err)
		}
	})

	t.Run("removed open loop fails", func(t *testing.T) {
		old := types.NewWorkingMemory()
		old.OpenLoops = []types.OpenLoopItem{{ID: "loop_1", Question: "which db?", Status: types.OpenLoopOpen}}
		updated := types.NewWorkingMemory()

		if err := Reconcile(old, updated); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
