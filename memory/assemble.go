package memory

import (
	"encoding/json"

	"github.com/macrador/distill/types"
)

// AssembleContext resolves a retrieval selection against the current
// working memory and emits ordered context blocks in fixed priority:
// constraints, definitions, decisions, facts. A category with no resolved
// items emits no block.
//
// Assumptions, open loops, and long-term memory are selected upstream but
// not injected here; that asymmetry is part of the documented behavior,
// not an oversight to fix in assembly.
func AssembleContext(sel *types.Selection, wm *types.WorkingMemory) []types.ContextBlock {
	blocks := []types.ContextBlock{}
	if sel == nil || wm == nil {
		return blocks
	}

	constraints := itemsByID(wm.Constraints, sel.ConstraintIDs)
	definitions := definitionsByTerm(wm.Definitions, sel.DefinitionTerms)
	decisions := itemsByID(wm.Decisions, sel.DecisionIDs)
	facts := itemsByID(wm.Facts, sel.FactIDs)

	if len(constraints) > 0 {
		blocks = append(blocks, block("CONSTRAINTS", constraints))
	}
	if len(definitions) > 0 {
		blocks = append(blocks, block("DEFINITIONS", definitions))
	}
	if len(decisions) > 0 {
		blocks = append(blocks, block("DECISIONS", decisions))
	}
	if len(facts) > 0 {
		blocks = append(blocks, block("FACTS", facts))
	}

	return blocks
}

// BlocksBlob renders assembled blocks as the newline-joined content used
// for the injected token count.
func BlocksBlob(blocks []types.ContextBlock) string {
	blob := ""
	for i, b := range blocks {
		if i > 0 {
			blob += "\n"
		}
		blob += b.Content
	}
	return blob
}

func block[T any](label string, items []T) types.ContextBlock {
	payload, _ := json.Marshal(items)
	return types.ContextBlock{
		Role:    types.RoleSystem,
		Content: label + ":\n" + string(payload),
	}
}

func itemsByID(items []types.MemoryItem, ids []string) []types.MemoryItem {
	idx := make(map[string]types.MemoryItem, len(items))
	for _, it := range items {
		if it.ID != "" {
			idx[it.ID] = it
		}
	}
	out := make([]types.MemoryItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := idx[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

func definitionsByTerm(items []types.DefinitionItem, terms []string) []types.DefinitionItem {
	idx := make(map[string]types.DefinitionItem, len(items))
	for _, it := range items {
		if it.Term != "" {
			idx[it.Term] = it
		}
	}
	out := make([]types.DefinitionItem, 0, len(terms))
	for _, term := range terms {
		if it, ok := idx[term]; ok {
			out = append(out, it)
		}
	}
	return out
}
