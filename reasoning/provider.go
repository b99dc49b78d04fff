// Package reasoning defines the pluggable reasoning provider consumed by
// the orchestrator: model-backed compression, retrieval, planning, and
// critique, each with a deterministic fallback.
package reasoning

import (
	"context"
	"errors"

	"github.com/macrador/distill/types"
)

// Provider errors.
var (
	// ErrProviderFormat is returned when provider output cannot be parsed
	// into the expected structure, even after lenient extraction.
	ErrProviderFormat = errors.New("unparseable provider output")

	// ErrMissingAPIKey is returned at construction when the model-backed
	// provider is requested without credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Provider is the reasoning capability consumed by the orchestrator. Every
// operation returns a structured object or fails with a provider-format
// error; none of them mutate persistent state.
type Provider interface {
	// Compress distills the full transcript and the prior working memory
	// (nil on the first compression) into a new working memory.
	Compress(ctx context.Context, objective string, transcript []types.Message, prior *types.WorkingMemory) (*types.WorkingMemory, error)

	// RetrieveMinimal selects the minimal memory subset needed for the
	// next step.
	RetrieveMinimal(ctx context.Context, objective, userMessage string, stmTail []types.Message, wm *types.WorkingMemory, ltm *types.LongTermMemory) (*types.Selection, error)

	// Plan produces the assistant reply plus structured artifacts.
	Plan(ctx context.Context, objective string, injected []types.ContextBlock, stmTail []types.Message, userMessage string) (*types.PlannerOutput, error)

	// Critique reviews the planner output against the same context.
	Critique(ctx context.Context, objective string, injected []types.ContextBlock, stmTail []types.Message, userMessage string, planner *types.PlannerOutput) (*types.CriticOutput, error)
}
