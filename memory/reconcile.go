package memory

import (
	"fmt"
	"strings"

	"github.com/macrador/distill/types"
)

// Reconcile enforces the non-silent-deletion rule after a compression: any
// item id (or definition term) present in the prior working memory but
// absent from the new one must be accounted for by a supersession edge, a
// supersedes reference on a surviving item, or a dropped entry matching
// the removed item's text. Unaccounted removals fail the compression.
func Reconcile(old, updated *types.WorkingMemory) error {
	if old == nil || updated == nil {
		return nil
	}

	accounted := accountedRemovals(updated)
	var missing []string

	check := func(section, id, text string, present bool) {
		if present {
			return
		}
		if _, ok := accounted.ids[id]; ok {
			return
		}
		if _, ok := accounted.droppedTexts[text]; ok {
			return
		}
		missing = append(missing, section+"/"+id)
	}

	newIDs := collectIdentifiers(updated)
	sections := []struct {
		name  string
		items []types.MemoryItem
	}{
		{"facts", old.Facts},
		{"decisions", old.Decisions},
		{"constraints", old.Constraints},
		{"assumptions", old.Assumptions},
	}
	for _, s := range sections {
		for _, it := range s.items {
			_, present := newIDs[it.ID]
			check(s.name, it.ID, it.Text, present)
		}
	}
	for _, d := range old.Definitions {
		_, present := newIDs[d.Term]
		check("definitions", d.Term, d.Definition, present)
	}
	for _, l := range old.OpenLoops {
		_, present := newIDs[l.ID]
		check("open_loops", l.ID, l.Question, present)
	}

	if len(missing) > 0 {
		return fmt.Errorf("silent deletion of %d memory item(s): %s",
			len(missing), strings.Join(missing, ", "))
	}
	return nil
}

type removalAccount struct {
	ids          map[string]struct{}
	droppedTexts map[string]struct{}
}

// accountedRemovals gathers every identifier the new working memory admits
// to removing: supersession edge sources, supersedes references, and
// dropped texts.
func accountedRemovals(wm *types.WorkingMemory) removalAccount {
	acc := removalAccount{
		ids:          map[string]struct{}{},
		droppedTexts: map[string]struct{}{},
	}
	for _, e := range DeriveSuperseded(wm) {
		acc.ids[e.From] = struct{}{}
	}
	addSupersedes := func(refs []string) {
		for _, r := range refs {
			acc.ids[r] = struct{}{}
		}
	}
	for _, it := range wm.Facts {
		addSupersedes(it.Supersedes)
	}
	for _, it := range wm.Decisions {
		addSupersedes(it.Supersedes)
	}
	for _, it := range wm.Constraints {
		addSupersedes(it.Supersedes)
	}
	for _, it := range wm.Assumptions {
		addSupersedes(it.Supersedes)
	}
	for _, d := range wm.Definitions {
		addSupersedes(d.Supersedes)
	}
	for _, d := range wm.Dropped {
		acc.droppedTexts[d.Text] = struct{}{}
	}
	return acc
}

func collectIdentifiers(wm *types.WorkingMemory) map[string]struct{} {
	ids := map[string]struct{}{}
	for _, it := range wm.Facts {
		ids[it.ID] = struct{}{}
	}
	for _, it := range wm.Decisions {
		ids[it.ID] = struct{}{}
	}
	for _, it := range wm.Constraints {
		ids[it.ID] = struct{}{}
	}
	for _, it := range wm.Assumptions {
		ids[it.ID] = struct{}{}
	}
	for _, d := range wm.Definitions {
		ids[d.Term] = struct{}{}
	}
	for _, l := range wm.OpenLoops {
		ids[l.ID] = struct{}{}
	}
	return ids
}
