package memory

import "github.com/macrador/distill/types"

// DeriveSuperseded scans every section of the working memory and emits one
// edge per deprecated item that names its replacement. Items are addressed
// by id, definitions by term. The result is de-duplicated on the full
// (section, from, to, key) tuple; repeated derivation never grows it.
//
// The derived list is exactly the "superseded" field of the canonical
// ledger.
func DeriveSuperseded(wm *types.WorkingMemory) []types.SupersededEdge {
	if wm == nil {
		return []types.SupersededEdge{}
	}

	edges := []types.SupersededEdge{}
	add := func(section, from string, to *string, key *string) {
		if from == "" || types.Deref(to) == "" {
			return
		}
		edges = append(edges, types.SupersededEdge{
			Section: section,
			From:    from,
			To:      *to,
			Key:     key,
		})
	}

	scanItems := func(section string, items []types.MemoryItem) {
		for _, it := range items {
			if it.Status != types.StatusDeprecated {
				continue
			}
			add(section, it.ID, it.SupersededBy, it.Key)
		}
	}

	scanItems("facts", wm.Facts)
	scanItems("decisions", wm.Decisions)
	scanItems("constraints", wm.Constraints)
	for _, d := range wm.Definitions {
		if d.Status != types.StatusDeprecated {
			continue
		}
		add("definitions", d.Term, d.SupersededBy, nil)
	}
	scanItems("assumptions", wm.Assumptions)
	// Open loops carry no supersession fields; the section participates in
	// the scan order for completeness but never yields edges.

	return dedupeEdges(edges)
}

type edgeKey struct {
	section string
	from    string
	to      string
	key     string
}

func dedupeEdges(edges []types.SupersededEdge) []types.SupersededEdge {
	seen := make(map[edgeKey]struct{}, len(edges))
	out := make([]types.SupersededEdge, 0, len(edges))
	for _, e := range edges {
		k := edgeKey{e.Section, e.From, e.To, types.Deref(e.Key)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
