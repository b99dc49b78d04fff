package distill

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/macrador/distill/reasoning"
	"github.com/macrador/distill/storage"
	"github.com/macrador/distill/types"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return New(store, WithDataDir(t.TempDir())), store
}

// fallbackConfig disables the model-backed provider so steps run on the
// deterministic fallbacks.
func fallbackConfig() types.RunConfig {
	config := types.DefaultRunConfig()
	config.UseLLM = false
	return config
}

func TestCreateRun(t *testing.T) {
	ctx := context.Background()
	orch, store := newTestOrchestrator(t)

	t.Run("defaults applied", func(t *testing.T) {
		run, err := orch.CreateRun(ctx, "reduce token usage", "", nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if run.Config.STMMaxMessages != types.DefaultSTMMaxMessages {
			t.Errorf("stm max = %d, want default", run.Config.STMMaxMessages)
		}
		if run.Scenario != "C" {
			t.Errorf("scenario = %q, want C", run.Scenario)
		}
		if run.StepIndex != 0 {
			t.Errorf("step index = %d, want 0", run.StepIndex)
		}

		events, err := store.ListEvents(ctx, run.ID, 10)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 1 || events[0].Type != types.EventRunCreated {
			t.Errorf("events = %+v, want one run_created", events)
		}
	})

	t.Run("objective required", func(t *testing.T) {
		if _, err := orch.CreateRun(ctx, "", "C", nil); !errors.Is(err, ErrObjectiveRequired) {
			t.Errorf("err = %v, want ErrObjectiveRequired", err)
		}
	})
}

func TestStepDisabledReasoning(t *testing.T) {
	ctx := context.Background()
	orch, store := newTestOrchestrator(t)

	config := fallbackConfig()
	run, err := orch.CreateRun(ctx, "reduce token usage", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := orch.Step(ctx, run.ID, "first question")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	second, err := orch.Step(ctx, run.ID, "second question")
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}

	if first.StepIndex != 1 || second.StepIndex != 2 {
		t.Errorf("step indices = %d, %d, want 1, 2", first.StepIndex, second.StepIndex)
	}
	if first.AssistantMessage != reasoning.DisabledAssistantMessage {
		t.Errorf("assistant = %q, want placeholder", first.AssistantMessage)
	}
	if second.Metrics.ReductionPct < 0 {
		t.Errorf("reduction pct = %f, want >= 0", second.Metrics.ReductionPct)
	}
	if second.Metrics.CriticVerdict != types.VerdictWarn {
		t.Errorf("verdict = %q, want warn", second.Metrics.CriticVerdict)
	}

	msgs, err := store.ListMessages(ctx, run.ID, 100)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	// user + assistant per step
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleAssistant {
		t.Errorf("message roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}

	// Run record advanced.
	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.StepIndex != 2 {
		t.Errorf("run step index = %d, want 2", got.StepIndex)
	}

	// Planner and critic events stay off when reasoning is disabled.
	events, err := store.ListEvents(ctx, run.ID, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, e := range events {
		if e.Type == types.EventPlanner || e.Type == types.EventCritic {
			t.Errorf("unexpected %s event with reasoning disabled", e.Type)
		}
	}
}

func TestStepIntervalCompression(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t)

	config := fallbackConfig()
	config.CompressionIntervalSteps = 2
	run, err := orch.CreateRun(ctx, "reduce token usage", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := orch.Step(ctx, run.ID, "step one")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if first.TriggeredCompression {
		t.Error("step 1 compressed, want no trigger")
	}
	if first.Metrics.LastSnapshotPath != "" {
		t.Errorf("step 1 snapshot path = %q, want empty", first.Metrics.LastSnapshotPath)
	}

	second, err := orch.Step(ctx, run.ID, "step two")
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if !second.TriggeredCompression {
		t.Fatal("step 2 did not compress on interval")
	}
	if second.Metrics.LastSnapshotPath == "" {
		t.Error("step 2 snapshot path empty")
	}
	if _, err := os.Stat(second.Metrics.LastSnapshotPath); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}

	snap, err := orch.GetLatestSnapshot(ctx, run.ID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap == nil || snap.StepIndex != 2 {
		t.Errorf("snapshot = %+v, want step index 2", snap)
	}
	if snap.Forced {
		t.Error("interval compression marked forced")
	}
}

func TestStepThresholdCompression(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t)

	config := fallbackConfig()
	config.CompressionTokenThreshold = 10
	run, err := orch.CreateRun(ctx, "reduce token usage", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := orch.Step(ctx, run.ID, "a message comfortably past ten tokens of estimated length")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !result.TriggeredCompression {
		t.Error("threshold did not trigger compression")
	}
}

func TestForceCompress(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	store := storage.NewMemoryStore()
	defer store.Close()
	orch := New(store, WithDataDir(dataDir))

	config := fallbackConfig()
	run, err := orch.CreateRun(ctx, "reduce token usage", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := orch.Step(ctx, run.ID, "the deadline is friday"); err != nil {
		t.Fatalf("step: %v", err)
	}

	result, err := orch.ForceCompress(ctx, run.ID)
	if err != nil {
		t.Fatalf("force compress: %v", err)
	}
	if result.WorkingMemory == nil || len(result.WorkingMemory.Facts) == 0 {
		t.Fatalf("working memory = %+v, want fallback facts", result.WorkingMemory)
	}
	if result.SnapshotPath == "" {
		t.Fatal("snapshot path empty")
	}

	// Compression persists the working memory.
	wm, err := store.GetWorkingMemory(ctx, run.ID)
	if err != nil {
		t.Fatalf("get working memory: %v", err)
	}
	if wm == nil || len(wm.Facts) != len(result.WorkingMemory.Facts) {
		t.Errorf("stored memory = %+v, want same facts as result", wm)
	}

	// The canonical ledger holds exactly the strict five-key schema.
	raw, err := os.ReadFile(filepath.Join(dataDir, "memory.json"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		t.Fatalf("ledger not JSON: %v", err)
	}
	for _, key := range []string{"facts", "decisions", "constraints", "open_loops", "superseded"} {
		if _, ok := shape[key]; !ok {
			t.Errorf("ledger missing key %q", key)
		}
	}
	if len(shape) != 5 {
		t.Errorf("ledger has %d keys, want 5", len(shape))
	}

	// Forced compressions are tagged in the snapshot and events.
	snap, err := orch.GetLatestSnapshot(ctx, run.ID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap == nil || !snap.Forced {
		t.Errorf("snapshot = %+v, want forced", snap)
	}
}

func TestStepErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown run", func(t *testing.T) {
		orch, _ := newTestOrchestrator(t)
		if _, err := orch.Step(ctx, "run_missing", "hello"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("err = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("reasoning enabled without provider", func(t *testing.T) {
		orch, _ := newTestOrchestrator(t)
		config := types.DefaultRunConfig()
		config.UseLLM = true
		run, err := orch.CreateRun(ctx, "obj", "C", &config)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := orch.Step(ctx, run.ID, "hello"); !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("err = %v, want ErrProviderUnavailable", err)
		}
	})
}

func TestGetMemory(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t)

	config := fallbackConfig()
	config.CompressionIntervalSteps = 1
	run, err := orch.CreateRun(ctx, "reduce token usage", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := orch.Step(ctx, run.ID, "remember this detail"); err != nil {
		t.Fatalf("step: %v", err)
	}

	view, err := orch.GetMemory(ctx, run.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if len(view.STMTail) == 0 {
		t.Error("stm tail empty")
	}
	if view.WorkingMemory == nil || len(view.WorkingMemory.Facts) == 0 {
		t.Errorf("working memory = %+v, want fallback facts", view.WorkingMemory)
	}
	if view.Metrics.BaselineTokens <= 0 {
		t.Errorf("baseline tokens = %d, want > 0", view.Metrics.BaselineTokens)
	}
}

func TestGetEvents(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t)

	config := fallbackConfig()
	run, err := orch.CreateRun(ctx, "obj", "C", &config)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := orch.Step(ctx, run.ID, "hello"); err != nil {
		t.Fatalf("step: %v", err)
	}

	events, err := orch.GetEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	var sawCreated, sawRetrieval bool
	for _, e := range events {
		switch e.Type {
		case types.EventRunCreated:
			sawCreated = true
		case types.EventRetrieval:
			sawRetrieval = true
		}
	}
	if !sawCreated || !sawRetrieval {
		t.Errorf("events missing run_created or retrieval: %+v", events)
	}
}
