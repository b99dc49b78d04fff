package distill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/macrador/distill/canonical"
	"github.com/macrador/distill/memory"
	"github.com/macrador/distill/reasoning"
	"github.com/macrador/distill/storage"
	"github.com/macrador/distill/types"
)

// DefaultDataDir holds the canonical ledger and snapshot files when no
// other location is configured.
const DefaultDataDir = ".distill"

// Orchestrator runs the per-turn pipeline: RECEIVE, LOAD, RETRIEVE, PLAN,
// CRITIQUE, MAYBE_COMPRESS, PERSIST. No state is retained between stages
// beyond the values passed forward, and no state is retained between
// turns outside the store.
type Orchestrator struct {
	store     storage.Store
	provider  reasoning.Provider
	fallback  reasoning.Provider
	ledger    *canonical.Persister
	snapshots *canonical.SnapshotStore
	logger    Logger
	dataDir   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider sets the model-backed reasoning provider. Runs with
// reasoning disabled ignore it and use the deterministic fallbacks.
func WithProvider(p reasoning.Provider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

// WithLogger sets the logger. Default is a no-op.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDataDir places the canonical ledger (memory.json) and the snapshot
// directory under dir. Default: ".distill".
func WithDataDir(dir string) Option {
	return func(o *Orchestrator) { o.dataDir = dir }
}

// New creates an orchestrator over the given persistence backend.
func New(store storage.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		fallback: reasoning.NewFallback(),
		logger:   noopLogger{},
		dataDir:  DefaultDataDir,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ledger = canonical.NewPersister(filepath.Join(o.dataDir, "memory.json"), o.logger)
	o.snapshots = canonical.NewSnapshotStore(filepath.Join(o.dataDir, "snapshots"))
	return o
}

// CreateRun registers a new run with the given objective and optional
// config (defaults applied). A run_created audit event is recorded.
func (o *Orchestrator) CreateRun(ctx context.Context, objective, scenario string, config *types.RunConfig) (*types.Run, error) {
	if objective == "" {
		return nil, ErrObjectiveRequired
	}
	if scenario == "" {
		scenario = "C"
	}

	cfg := types.DefaultRunConfig()
	if config != nil {
		cfg = *config
		cfg.ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	now := time.Now().UTC()
	run := &types.Run{
		ID:        types.NewRunID(),
		Objective: objective,
		Scenario:  scenario,
		Config:    cfg,
		StepIndex: 0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, stepError("create_run", run.ID, err)
	}
	if err := o.emit(ctx, run.ID, 0, types.EventRunCreated, map[string]any{"run": toPayload(run)}); err != nil {
		return nil, stepError("create_run", run.ID, err)
	}

	o.logger.Info("run created", "run_id", run.ID, "objective", objective)
	return run, nil
}

// Step executes one full pipeline turn for the inbound user message.
//
// An unresolvable run id fails immediately with no mutation. A failure in
// a later stage propagates, but stages already completed (the message
// append, earlier audit events) are not rolled back; the next triggered
// compression catches up by re-reading the full transcript.
func (o *Orchestrator) Step(ctx context.Context, runID, userMessage string) (*types.StepResult, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, o.wrapNotFound("step", runID, err)
	}

	cfg := run.Config
	enabled := cfg.UseLLM
	if enabled && o.provider == nil {
		return nil, stepError("step", runID, ErrProviderUnavailable)
	}
	prov := o.fallback
	if enabled {
		prov = o.provider
	}

	// RECEIVE: the turn's step index is run.StepIndex+1; the run record
	// is only updated at PERSIST.
	stepIndex := run.StepIndex + 1
	userMsg := &types.Message{
		ID:        types.NewID(types.PrefixMessage),
		RunID:     runID,
		Role:      types.RoleUser,
		Content:   userMessage,
		StepIndex: stepIndex,
		Timestamp: time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, stepError("receive", runID, err)
	}

	// LOAD
	transcript, err := o.store.ListMessages(ctx, runID, storage.DefaultMessageLimit)
	if err != nil {
		return nil, stepError("load", runID, err)
	}
	stmTail, err := o.store.ListSTMTail(ctx, runID, cfg.STMMaxMessages)
	if err != nil {
		return nil, stepError("load", runID, err)
	}
	wm, err := o.store.GetWorkingMemory(ctx, runID)
	if err != nil {
		return nil, stepError("load", runID, err)
	}
	ltm, err := o.store.GetLongTermMemory(ctx, runID)
	if err != nil {
		return nil, stepError("load", runID, err)
	}

	// Baseline: the whole transcript injected, including the objective.
	baselineTokens := memory.EstimateTokens(run.Objective + "\n" + memory.TranscriptBlob(transcript))

	// RETRIEVE
	selection, err := prov.RetrieveMinimal(ctx, run.Objective, userMessage, stmTail, wm, ltm)
	if err != nil {
		return nil, stepError("retrieve", runID, err)
	}
	injected := memory.AssembleContext(selection, wm)

	// Compressed prompt approximation: objective + injected memory + STM
	// tail + the new user message, under the same estimator as baseline.
	compressedBlob := run.Objective + "\n" + memory.BlocksBlob(injected) + "\n" +
		memory.TranscriptBlob(stmTail) + "\nuser:" + userMessage
	injectedTokens := memory.EstimateTokens(compressedBlob)

	if err := o.emit(ctx, runID, stepIndex, types.EventRetrieval, map[string]any{
		"retrieval":       toPayload(selection),
		"injected_tokens": injectedTokens,
	}); err != nil {
		return nil, stepError("retrieve", runID, err)
	}

	// PLAN
	planner, err := prov.Plan(ctx, run.Objective, injected, stmTail, userMessage)
	if err != nil {
		return nil, stepError("plan", runID, err)
	}
	assistantMsg := &types.Message{
		ID:        types.NewID(types.PrefixMessage),
		RunID:     runID,
		Role:      types.RoleAssistant,
		Content:   planner.AssistantMessage,
		StepIndex: stepIndex,
		Timestamp: time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, stepError("plan", runID, err)
	}
	if enabled {
		if err := o.emit(ctx, runID, stepIndex, types.EventPlanner, toPayload(planner)); err != nil {
			return nil, stepError("plan", runID, err)
		}
	}

	// CRITIQUE
	critic, err := prov.Critique(ctx, run.Objective, injected, stmTail, userMessage, planner)
	if err != nil {
		return nil, stepError("critique", runID, err)
	}
	if enabled {
		if err := o.emit(ctx, runID, stepIndex, types.EventCritic, toPayload(critic)); err != nil {
			return nil, stepError("critique", runID, err)
		}
	}

	// MAYBE_COMPRESS
	triggered := ShouldCompress(cfg, stepIndex, baselineTokens)
	snapshotPath := ""
	if triggered {
		snapshotPath, err = o.compress(ctx, run, stepIndex, prov, transcript, wm, selection, false)
		if err != nil {
			return nil, stepError("compress", runID, err)
		}
	}

	// PERSIST
	reductionPct := 0.0
	if baselineTokens > 0 {
		reductionPct = max(0, float64(baselineTokens-injectedTokens)/float64(baselineTokens)) * 100
	}
	metrics := types.Metrics{
		BaselineTokens:   baselineTokens,
		InjectedTokens:   injectedTokens,
		ReductionPct:     reductionPct,
		LastSnapshotPath: snapshotPath,
		CriticVerdict:    critic.Verdict,
	}
	if err := o.store.SetMetrics(ctx, runID, &metrics); err != nil {
		return nil, stepError("persist", runID, err)
	}
	if err := o.store.UpdateRun(ctx, runID, stepIndex, time.Now().UTC()); err != nil {
		return nil, stepError("persist", runID, err)
	}

	o.logger.Info("step complete",
		"run_id", runID,
		"step_index", stepIndex,
		"baseline_tokens", baselineTokens,
		"injected_tokens", injectedTokens,
		"triggered_compression", triggered,
	)

	return &types.StepResult{
		RunID:                runID,
		StepIndex:            stepIndex,
		UserMessageID:        userMsg.ID,
		AssistantMessage:     planner.AssistantMessage,
		TriggeredCompression: triggered,
		Metrics:              metrics,
	}, nil
}

// ForceCompressResult is returned from ForceCompress.
type ForceCompressResult struct {
	RunID         string               `json:"run_id"`
	StepIndex     int                  `json:"step_index"`
	WorkingMemory *types.WorkingMemory `json:"cwm"`
	SnapshotPath  string               `json:"snapshot_path"`
}

// ForceCompress compresses the run immediately, ignoring the trigger
// policy. The resulting compression and snapshot events are tagged as
// forced.
func (o *Orchestrator) ForceCompress(ctx context.Context, runID string) (*ForceCompressResult, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, o.wrapNotFound("force_compress", runID, err)
	}

	enabled := run.Config.UseLLM
	if enabled && o.provider == nil {
		return nil, stepError("force_compress", runID, ErrProviderUnavailable)
	}
	prov := o.fallback
	if enabled {
		prov = o.provider
	}

	transcript, err := o.store.ListMessages(ctx, runID, storage.DefaultMessageLimit)
	if err != nil {
		return nil, stepError("force_compress", runID, err)
	}
	wm, err := o.store.GetWorkingMemory(ctx, runID)
	if err != nil {
		return nil, stepError("force_compress", runID, err)
	}

	snapshotPath, err := o.compress(ctx, run, run.StepIndex, prov, transcript, wm, nil, true)
	if err != nil {
		return nil, stepError("force_compress", runID, err)
	}

	newWM, err := o.store.GetWorkingMemory(ctx, runID)
	if err != nil {
		return nil, stepError("force_compress", runID, err)
	}

	return &ForceCompressResult{
		RunID:         runID,
		StepIndex:     run.StepIndex,
		WorkingMemory: newWM,
		SnapshotPath:  snapshotPath,
	}, nil
}

// compress runs the compression stage: distill, reconcile, persist the
// canonical subset, store the new working memory, snapshot, and audit.
func (o *Orchestrator) compress(ctx context.Context, run *types.Run, stepIndex int, prov reasoning.Provider, transcript []types.Message, prior *types.WorkingMemory, retrieval *types.Selection, forced bool) (string, error) {
	newWM, err := prov.Compress(ctx, run.Objective, transcript, prior)
	if err != nil {
		return "", err
	}

	// Non-silent-deletion: every removal must be accounted for by a
	// supersession edge or a dropped entry before anything is persisted.
	if err := memory.Reconcile(prior, newWM); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSilentDeletion, err)
	}

	if err := o.ledger.Save(canonical.FromWorkingMemory(newWM)); err != nil {
		return "", err
	}
	if err := o.store.SetWorkingMemory(ctx, run.ID, newWM); err != nil {
		return "", err
	}

	compressionPayload := map[string]any{"cwm": toPayload(newWM)}
	if forced {
		compressionPayload["forced"] = true
	}
	if err := o.emit(ctx, run.ID, stepIndex, types.EventCompression, compressionPayload); err != nil {
		return "", err
	}

	snap := &types.Snapshot{
		RunID:         run.ID,
		StepIndex:     stepIndex,
		Objective:     run.Objective,
		WorkingMemory: newWM,
		Retrieval:     retrieval,
		Timestamp:     time.Now().UTC(),
		Forced:        forced,
	}
	snapshotPath, err := o.snapshots.Write(snap)
	if err != nil {
		return "", err
	}
	if err := o.emit(ctx, run.ID, stepIndex, types.EventSnapshot, map[string]any{"path": snapshotPath}); err != nil {
		return "", err
	}

	o.logger.Info("compression complete",
		"run_id", run.ID,
		"step_index", stepIndex,
		"forced", forced,
		"snapshot", snapshotPath,
	)
	return snapshotPath, nil
}

// MemoryView is the tiered memory state returned by GetMemory.
type MemoryView struct {
	RunID         string                `json:"run_id"`
	STMTail       []types.Message       `json:"stm"`
	WorkingMemory *types.WorkingMemory  `json:"cwm"`
	LongTermMem   *types.LongTermMemory `json:"ltm"`
	Metrics       types.Metrics         `json:"metrics"`
}

// GetMemory returns the run's short-term tail, latest working memory,
// long-term memory and metrics.
func (o *Orchestrator) GetMemory(ctx context.Context, runID string) (*MemoryView, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, o.wrapNotFound("get_memory", runID, err)
	}

	stmTail, err := o.store.ListSTMTail(ctx, runID, run.Config.STMMaxMessages)
	if err != nil {
		return nil, stepError("get_memory", runID, err)
	}
	wm, err := o.store.GetWorkingMemory(ctx, runID)
	if err != nil {
		return nil, stepError("get_memory", runID, err)
	}
	ltm, err := o.store.GetLongTermMemory(ctx, runID)
	if err != nil {
		return nil, stepError("get_memory", runID, err)
	}
	metrics, err := o.store.GetMetrics(ctx, runID)
	if err != nil {
		return nil, stepError("get_memory", runID, err)
	}

	return &MemoryView{
		RunID:         runID,
		STMTail:       stmTail,
		WorkingMemory: wm,
		LongTermMem:   ltm,
		Metrics:       *metrics,
	}, nil
}

// GetEvents returns the run's audit trail in chronological order.
func (o *Orchestrator) GetEvents(ctx context.Context, runID string) ([]types.Event, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, o.wrapNotFound("get_events", runID, err)
	}
	return o.store.ListEvents(ctx, runID, storage.DefaultEventLimit)
}

// GetLatestSnapshot returns the run's newest snapshot, or nil when the
// run has never been compressed.
func (o *Orchestrator) GetLatestSnapshot(ctx context.Context, runID string) (*types.Snapshot, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, o.wrapNotFound("get_latest_snapshot", runID, err)
	}
	return o.snapshots.Latest(runID)
}

// emit records one audit event.
func (o *Orchestrator) emit(ctx context.Context, runID string, stepIndex int, eventType types.EventType, payload map[string]any) error {
	return o.store.AppendEvent(ctx, &types.Event{
		ID:        types.NewID(types.PrefixEvent),
		RunID:     runID,
		StepIndex: stepIndex,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Payload:   payload,
	})
}

func (o *Orchestrator) wrapNotFound(op, runID string, err error) error {
	if errors.Is(err, storage.ErrRunNotFound) {
		return stepError(op, runID, ErrRunNotFound)
	}
	return stepError(op, runID, err)
}

// toPayload converts a typed record to the generic map form stored in
// event payloads.
func toPayload(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
