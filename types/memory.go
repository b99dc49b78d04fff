// Package types defines the records shared across the distillation engine:
// memory items, working memory, runs, messages, events, and the structured
// outputs of the reasoning provider.
package types

import "time"

// Confidence expresses how certain the engine is about a memory item.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ItemStatus is the lifecycle state of a memory item.
type ItemStatus string

const (
	// StatusActive marks an item as current.
	StatusActive ItemStatus = "active"

	// StatusDeprecated marks an item replaced by a newer one. A deprecated
	// item keeps its supersession links so lineage is never lost.
	StatusDeprecated ItemStatus = "deprecated"
)

// OpenLoopStatus is the lifecycle state of an open loop.
type OpenLoopStatus string

const (
	OpenLoopOpen   OpenLoopStatus = "open"
	OpenLoopClosed OpenLoopStatus = "closed"
)

// OpenLoopOwner identifies which agent is responsible for resolving a loop.
type OpenLoopOwner string

const (
	OwnerOrchestrator OpenLoopOwner = "orchestrator"
	OwnerPlanner      OpenLoopOwner = "planner"
	OwnerCritic       OpenLoopOwner = "critic"
)

// MemoryItem is a single distilled statement in working memory.
//
// Supersession is expressed entirely through per-item fields: a new item's
// Supersedes names the item(s) it replaces, and each replaced item is
// deprecated with SupersededBy pointing back at the replacement. Key is an
// optional stable logical slot (e.g. "compression.threshold") that lets a
// later compression locate the item to replace regardless of its generated
// id.
type MemoryItem struct {
	ID     string     `json:"id"`
	Key    *string    `json:"key"`
	Text   string     `json:"text"`
	Status ItemStatus `json:"status"`

	Supersedes   []string `json:"supersedes"`
	SupersededBy *string  `json:"superseded_by"`

	Confidence       Confidence `json:"confidence"`
	SourceMessageIDs []string   `json:"source_message_ids"`
}

// DefinitionItem is a memory item keyed by term rather than generated id.
type DefinitionItem struct {
	Term       string     `json:"term"`
	Definition string     `json:"definition"`
	Status     ItemStatus `json:"status"`

	Supersedes   []string `json:"supersedes"`
	SupersededBy *string  `json:"superseded_by"`

	Confidence       Confidence `json:"confidence"`
	SourceMessageIDs []string   `json:"source_message_ids"`
}

// OpenLoopItem is an unresolved question carried between turns.
type OpenLoopItem struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Owner    OpenLoopOwner  `json:"owner"`
	Status   OpenLoopStatus `json:"status"`
}

// DroppedItem records a removal from working memory together with the
// reason. Removals without a dropped entry or a supersession edge violate
// the non-silent-deletion rule.
type DroppedItem struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// WorkingMemory is the structured, distilled ledger of a run. It is the
// runtime form: definitions, assumptions, dropped and updated_at exist here
// but are never persisted to the canonical ledger.
type WorkingMemory struct {
	Facts       []MemoryItem     `json:"facts"`
	Decisions   []MemoryItem     `json:"decisions"`
	Constraints []MemoryItem     `json:"constraints"`
	Assumptions []MemoryItem     `json:"assumptions"`
	Definitions []DefinitionItem `json:"definitions"`
	OpenLoops   []OpenLoopItem   `json:"open_loops"`

	Dropped   []DroppedItem `json:"dropped"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewWorkingMemory returns an empty working memory with all sections
// allocated, so JSON round-trips produce lists rather than nulls.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{
		Facts:       []MemoryItem{},
		Decisions:   []MemoryItem{},
		Constraints: []MemoryItem{},
		Assumptions: []MemoryItem{},
		Definitions: []DefinitionItem{},
		OpenLoops:   []OpenLoopItem{},
		Dropped:     []DroppedItem{},
		UpdatedAt:   time.Now().UTC(),
	}
}

// LongTermMemory is the curated, slower-changing store of durable facts
// and definitions.
type LongTermMemory struct {
	Facts       []MemoryItem     `json:"facts"`
	Definitions []DefinitionItem `json:"definitions"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SupersededEdge is one derived deprecation link: the item named From was
// replaced by the item named To within Section. Edges are derived from
// per-item fields, never stored as a separate graph.
type SupersededEdge struct {
	Section string  `json:"section"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Key     *string `json:"key"`
}

// Selection is the retrieval output: category-partitioned identifiers
// naming the minimal memory subset needed for the next step. Definitions
// are addressed by term; every other category by id.
type Selection struct {
	ConstraintIDs   []string `json:"constraints_ids"`
	DefinitionTerms []string `json:"definitions_terms"`
	DecisionIDs     []string `json:"decisions_ids"`
	FactIDs         []string `json:"facts_ids"`
	AssumptionIDs   []string `json:"assumptions_ids"`
	OpenLoopIDs     []string `json:"open_loop_ids"`
	Notes           string   `json:"notes"`
}

// Total returns the combined number of selected identifiers across all
// categories.
func (s *Selection) Total() int {
	return len(s.ConstraintIDs) + len(s.DefinitionTerms) + len(s.DecisionIDs) +
		len(s.FactIDs) + len(s.AssumptionIDs) + len(s.OpenLoopIDs)
}

// ContextBlock is one labeled unit of injected context, e.g. a
// "CONSTRAINTS:" block containing the serialized resolved items.
type ContextBlock struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PlannerOutput is the structured result of the planning operation.
type PlannerOutput struct {
	AssistantMessage string           `json:"assistant_message"`
	Artifacts        PlannerArtifacts `json:"artifacts"`
}

// PlannerArtifacts carries the planner's structured side outputs.
type PlannerArtifacts struct {
	PlanSteps       []string `json:"plan_steps"`
	ProposedChanges []string `json:"proposed_changes"`
	OpenQuestions   []string `json:"open_questions"`
}

// Verdict is the critic's overall judgement of a planner output.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Issue is a single problem raised by the critic.
type Issue struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// CriticOutput is the structured result of the critique operation.
type CriticOutput struct {
	Verdict        Verdict  `json:"verdict"`
	Issues         []Issue  `json:"issues"`
	MissingMemory  []string `json:"missing_memory"`
	SuggestedFixes []string `json:"suggested_fixes"`
}

// Helper functions for working with pointers

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the value pointed to by p, or the zero value if p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
