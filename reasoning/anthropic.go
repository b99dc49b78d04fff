package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/macrador/distill/types"
)

// DefaultMaxTokens caps each provider response.
const DefaultMaxTokens = 4096

// AnthropicProvider is the model-backed reasoning provider. Each operation
// sends one streaming request with a stage-specific system prompt and a
// JSON payload, accumulates the streamed text, and parses it leniently
// into the stage's typed record.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates a provider on an existing Anthropic client.
func NewAnthropicProvider(client *anthropic.Client, model string) (*AnthropicProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("anthropic client is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &AnthropicProvider{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTokens,
	}, nil
}

// NewAnthropicProviderFromEnv constructs the client from the environment.
// It fails fast with ErrMissingAPIKey when ANTHROPIC_API_KEY is unset, so
// a misconfigured deployment surfaces before any step work begins.
func NewAnthropicProviderFromEnv(model string) (*AnthropicProvider, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrMissingAPIKey)
	}
	client := anthropic.NewClient()
	return NewAnthropicProvider(&client, model)
}

// wireWorkingMemory is the parse-boundary form of a compression response.
// The model's updated_at is discarded rather than trusted; unknown fields
// are dropped here and never leak further.
type wireWorkingMemory struct {
	Facts       []types.MemoryItem     `json:"facts"`
	Decisions   []types.MemoryItem     `json:"decisions"`
	Constraints []types.MemoryItem     `json:"constraints"`
	Assumptions []types.MemoryItem     `json:"assumptions"`
	Definitions []types.DefinitionItem `json:"definitions"`
	OpenLoops   []types.OpenLoopItem   `json:"open_loops"`
	Dropped     []types.DroppedItem    `json:"dropped"`
}

// Compress implements Provider.
func (p *AnthropicProvider) Compress(ctx context.Context, objective string, transcript []types.Message, prior *types.WorkingMemory) (*types.WorkingMemory, error) {
	payload := map[string]any{
		"objective":     objective,
		"full_messages": transcript,
		"prior_cwm":     prior,
	}

	text, err := p.ask(ctx, CompressionSystemPrompt, payload)
	if err != nil {
		return nil, err
	}

	var wire wireWorkingMemory
	if err := decodeLenient(text, &wire); err != nil {
		return nil, err
	}

	wm := &types.WorkingMemory{
		Facts:       emptyIfNil(wire.Facts),
		Decisions:   emptyIfNil(wire.Decisions),
		Constraints: emptyIfNil(wire.Constraints),
		Assumptions: emptyIfNil(wire.Assumptions),
		Definitions: emptyIfNil(wire.Definitions),
		OpenLoops:   emptyIfNil(wire.OpenLoops),
		Dropped:     emptyIfNil(wire.Dropped),
		UpdatedAt:   time.Now().UTC(),
	}
	return wm, nil
}

// RetrieveMinimal implements Provider.
func (p *AnthropicProvider) RetrieveMinimal(ctx context.Context, objective, userMessage string, stmTail []types.Message, wm *types.WorkingMemory, ltm *types.LongTermMemory) (*types.Selection, error) {
	payload := map[string]any{
		"objective":           objective,
		"latest_user_message": userMessage,
		"stm_tail":            stmTail,
		"cwm":                 wm,
		"ltm":                 ltm,
	}

	text, err := p.ask(ctx, RetrievalSystemPrompt, payload)
	if err != nil {
		return nil, err
	}

	var sel types.Selection
	if err := decodeLenient(text, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Plan implements Provider.
func (p *AnthropicProvider) Plan(ctx context.Context, objective string, injected []types.ContextBlock, stmTail []types.Message, userMessage string) (*types.PlannerOutput, error) {
	payload := map[string]any{
		"objective":           objective,
		"injected_context":    injected,
		"stm_tail":            stmTail,
		"latest_user_message": userMessage,
	}

	text, err := p.ask(ctx, PlannerSystemPrompt, payload)
	if err != nil {
		return nil, err
	}

	var out types.PlannerOutput
	if err := decodeLenient(text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Critique implements Provider.
func (p *AnthropicProvider) Critique(ctx context.Context, objective string, injected []types.ContextBlock, stmTail []types.Message, userMessage string, planner *types.PlannerOutput) (*types.CriticOutput, error) {
	payload := map[string]any{
		"objective":           objective,
		"injected_context":    injected,
		"stm_tail":            stmTail,
		"latest_user_message": userMessage,
		"planner_output":      planner,
	}

	text, err := p.ask(ctx, CriticSystemPrompt, payload)
	if err != nil {
		return nil, err
	}

	var out types.CriticOutput
	if err := decodeLenient(text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ask sends one streaming request and returns the accumulated text.
func (p *AnthropicProvider) ask(ctx context.Context, systemPrompt string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(body))),
		},
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulate stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("provider request: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", ErrProviderFormat)
	}
	return text.String(), nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
