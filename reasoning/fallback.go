package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/macrador/distill/types"
)

// Fixed outputs used when reasoning is disabled.
const (
	// DisabledAssistantMessage is the planner placeholder reply.
	DisabledAssistantMessage = "(reasoning disabled)"

	// disabledCriticNote is the single issue raised by the placeholder critic.
	disabledCriticNote = "reasoning disabled; critic limited"
)

// Fallback bounds keeping deterministic output small and reproducible.
const (
	fallbackCompressWindow = 20  // messages scanned from the transcript tail
	fallbackFactMaxLen     = 240 // runes kept per fact
	fallbackKeywordLimit   = 20  // whitespace tokens taken from objective+message
	fallbackSelectionLimit = 8   // combined identifiers across all categories
)

// Fallback is the deterministic reasoning provider used when the
// model-backed provider is disabled or absent. Every operation degrades
// quality, not availability: fallbacks never fail on well-formed input.
type Fallback struct{}

// NewFallback returns the deterministic fallback provider.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Compress is purely additive: starting from the prior working memory (or
// an empty one), each user message in the transcript tail becomes a new
// low-confidence fact. Existing items are never removed or deprecated and
// the dropped list is untouched, so retained fact count never decreases
// across repeated calls.
func (f *Fallback) Compress(_ context.Context, _ string, transcript []types.Message, prior *types.WorkingMemory) (*types.WorkingMemory, error) {
	wm := prior
	if wm == nil {
		wm = types.NewWorkingMemory()
	}

	tail := transcript
	if len(tail) > fallbackCompressWindow {
		tail = tail[len(tail)-fallbackCompressWindow:]
	}

	for _, m := range tail {
		if m.Role != types.RoleUser {
			continue
		}
		// Truncate on rune boundaries; a byte cut could split a
		// multi-byte rune and leave invalid UTF-8 in the fact text.
		text := m.Content
		if utf8.RuneCountInString(text) > fallbackFactMaxLen {
			text = string([]rune(text)[:fallbackFactMaxLen])
		}
		wm.Facts = append(wm.Facts, types.MemoryItem{
			ID:               fmt.Sprintf("mem_fallback_%d", len(wm.Facts)+1),
			Text:             text,
			Status:           types.StatusActive,
			Supersedes:       []string{},
			Confidence:       types.ConfidenceLow,
			SourceMessageIDs: []string{m.ID},
		})
	}

	wm.UpdatedAt = time.Now().UTC()
	return wm, nil
}

// RetrieveMinimal performs deterministic keyword retrieval: the first 20
// whitespace tokens of the lowercased objective and user message are
// matched as substrings against active item texts, in priority order,
// until the combined selection reaches 8 identifiers. Deprecated items are
// never selected. Open loops carry no free text and are never matched.
func (f *Fallback) RetrieveMinimal(_ context.Context, objective, userMessage string, _ []types.Message, wm *types.WorkingMemory, _ *types.LongTermMemory) (*types.Selection, error) {
	sel := &types.Selection{
		ConstraintIDs:   []string{},
		DefinitionTerms: []string{},
		DecisionIDs:     []string{},
		FactIDs:         []string{},
		AssumptionIDs:   []string{},
		OpenLoopIDs:     []string{},
		Notes:           "fallback keyword retrieval",
	}
	if wm == nil {
		return sel, nil
	}

	tokens := strings.Fields(strings.ToLower(objective + "\n" + userMessage))
	if len(tokens) > fallbackKeywordLimit {
		tokens = tokens[:fallbackKeywordLimit]
	}

	matches := func(text string) bool {
		if text == "" {
			return false
		}
		lower := strings.ToLower(text)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				return true
			}
		}
		return false
	}

	pickItems := func(items []types.MemoryItem, out *[]string) {
		for _, it := range items {
			if sel.Total() >= fallbackSelectionLimit {
				return
			}
			if it.Status == types.StatusDeprecated {
				continue
			}
			if matches(it.Text) {
				*out = append(*out, it.ID)
			}
		}
	}

	pickItems(wm.Constraints, &sel.ConstraintIDs)
	for _, d := range wm.Definitions {
		if sel.Total() >= fallbackSelectionLimit {
			break
		}
		if d.Status == types.StatusDeprecated {
			continue
		}
		if matches(d.Definition) {
			sel.DefinitionTerms = append(sel.DefinitionTerms, d.Term)
		}
	}
	pickItems(wm.Decisions, &sel.DecisionIDs)
	pickItems(wm.Facts, &sel.FactIDs)
	pickItems(wm.Assumptions, &sel.AssumptionIDs)

	return sel, nil
}

// Plan returns the fixed placeholder reply signaling that reasoning is
// off, with empty artifacts.
func (f *Fallback) Plan(_ context.Context, _ string, _ []types.ContextBlock, _ []types.Message, _ string) (*types.PlannerOutput, error) {
	return &types.PlannerOutput{
		AssistantMessage: DisabledAssistantMessage,
		Artifacts: types.PlannerArtifacts{
			PlanSteps:       []string{},
			ProposedChanges: []string{},
			OpenQuestions:   []string{},
		},
	}, nil
}

// Critique returns the fixed "warn" verdict with one low-severity issue
// noting the limitation.
func (f *Fallback) Critique(_ context.Context, _ string, _ []types.ContextBlock, _ []types.Message, _ string, _ *types.PlannerOutput) (*types.CriticOutput, error) {
	return &types.CriticOutput{
		Verdict:        types.VerdictWarn,
		Issues:         []types.Issue{{Severity: "low", Text: disabledCriticNote}},
		MissingMemory:  []string{},
		SuggestedFixes: []string{},
	}, nil
}
