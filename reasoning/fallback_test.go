package reasoning

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/macrador/distill/types"
)

func TestFallbackCompress(t *testing.T) {
	ctx := context.Background()
	f := NewFallback()

	t.Run("user messages become low-confidence facts", func(t *testing.T) {
		transcript := []types.Message{
			{ID: "msg_1", Role: types.RoleUser, Content: "the deadline is friday"},
			{ID: "msg_2", Role: types.RoleAssistant, Content: "noted"},
			{ID: "msg_3", Role: types.RoleUser, Content: "budget is 2400 tokens"},
		}

		wm, err := f.Compress(ctx, "obj", transcript, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wm.Facts) != 2 {
			t.Fatalf("got %d facts, want 2", len(wm.Facts))
		}
		if wm.Facts[0].ID != "mem_fallback_1" || wm.Facts[1].ID != "mem_fallback_2" {
			t.Errorf("fact ids = %q, %q", wm.Facts[0].ID, wm.Facts[1].ID)
		}
		if wm.Facts[0].Confidence != types.ConfidenceLow {
			t.Errorf("confidence = %q, want low", wm.Facts[0].Confidence)
		}
		if wm.Facts[1].SourceMessageIDs[0] != "msg_3" {
			t.Errorf("source = %v, want [msg_3]", wm.Facts[1].SourceMessageIDs)
		}
	})

	t.Run("additive over prior memory", func(t *testing.T) {
		prior := types.NewWorkingMemory()
		prior.Facts = append(prior.Facts, types.MemoryItem{
			ID: "mem_fallback_1", Text: "earlier", Status: types.StatusActive,
		})
		transcript := []types.Message{
			{ID: "msg_9", Role: types.RoleUser, Content: "later"},
		}

		wm, err := f.Compress(ctx, "obj", transcript, prior)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wm.Facts) != 2 {
			t.Fatalf("got %d facts, want 2", len(wm.Facts))
		}
		if wm.Facts[1].ID != "mem_fallback_2" {
			t.Errorf("new fact id = %q, want mem_fallback_2", wm.Facts[1].ID)
		}
		if len(wm.Dropped) != 0 {
			t.Errorf("dropped = %v, want empty", wm.Dropped)
		}
	})

	t.Run("long messages are truncated", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		transcript := []types.Message{
			{ID: "msg_1", Role: types.RoleUser, Content: long},
		}
		wm, err := f.Compress(ctx, "obj", transcript, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wm.Facts[0].Text) != 240 {
			t.Errorf("fact length = %d, want 240", len(wm.Facts[0].Text))
		}
	})

	t.Run("truncation counts runes, not bytes", func(t *testing.T) {
		// A two-byte rune at position 240 would straddle a byte cut.
		content := strings.Repeat("x", 239) + "é"
		transcript := []types.Message{
			{ID: "msg_1", Role: types.RoleUser, Content: content},
		}
		wm, err := f.Compress(ctx, "obj", transcript, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := wm.Facts[0].Text; got != content {
			t.Errorf("fact text = %q, want message kept whole at 240 runes", got)
		}
		if !utf8.ValidString(wm.Facts[0].Text) {
			t.Error("fact text is not valid UTF-8")
		}
	})

	t.Run("multi-byte messages truncate on a rune boundary", func(t *testing.T) {
		transcript := []types.Message{
			{ID: "msg_1", Role: types.RoleUser, Content: strings.Repeat("é", 300)},
		}
		wm, err := f.Compress(ctx, "obj", transcript, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text := wm.Facts[0].Text
		if got := utf8.RuneCountInString(text); got != 240 {
			t.Errorf("fact rune count = %d, want 240", got)
		}
		if !utf8.ValidString(text) {
			t.Error("fact text is not valid UTF-8")
		}
	})

	t.Run("only the last 20 messages are scanned", func(t *testing.T) {
		var transcript []types.Message
		for i := 0; i < 30; i++ {
			transcript = append(transcript, types.Message{
				ID: "msg", Role: types.RoleUser, Content: "m",
			})
		}
		wm, err := f.Compress(ctx, "obj", transcript, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(wm.Facts) != 20 {
			t.Errorf("got %d facts, want 20", len(wm.Facts))
		}
	})
}

func TestFallbackRetrieveMinimal(t *testing.T) {
	ctx := context.Background()
	f := NewFallback()

	t.Run("keyword substring match", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Facts = []types.MemoryItem{
			{ID: "mem_1", Text: "token usage reduction must be at least 50 percent", Status: types.StatusActive},
			{ID: "mem_2", Text: "unrelated topic entirely", Status: types.StatusActive},
		}

		sel, err := f.RetrieveMinimal(ctx, "reduce token usage", "how much reduction?", nil, wm, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sel.FactIDs) != 1 || sel.FactIDs[0] != "mem_1" {
			t.Errorf("fact ids = %v, want [mem_1]", sel.FactIDs)
		}
	})

	t.Run("deprecated items are never selected", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.Facts = []types.MemoryItem{
			{ID: "mem_old", Text: "threshold detail", Status: types.StatusDeprecated},
			{ID: "mem_new", Text: "threshold detail updated", Status: types.StatusActive},
		}

		sel, err := f.RetrieveMinimal(ctx, "threshold", "", nil, wm, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sel.FactIDs) != 1 || sel.FactIDs[0] != "mem_new" {
			t.Errorf("fact ids = %v, want [mem_new]", sel.FactIDs)
		}
	})

	t.Run("combined cap of eight identifiers", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		for i := 0; i < 6; i++ {
			wm.Constraints = append(wm.Constraints, types.MemoryItem{
				ID: "mem_c", Text: "alpha", Status: types.StatusActive,
			})
		}
		for i := 0; i < 6; i++ {
			wm.Facts = append(wm.Facts, types.MemoryItem{
				ID: "mem_f", Text: "alpha", Status: types.StatusActive,
			})
		}

		sel, err := f.RetrieveMinimal(ctx, "alpha", "alpha", nil, wm, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := sel.Total(); got != 8 {
			t.Errorf("total selected = %d, want 8", got)
		}
		if len(sel.ConstraintIDs) != 6 {
			t.Errorf("constraint ids = %d, want 6 (higher priority)", len(sel.ConstraintIDs))
		}
		if len(sel.FactIDs) != 2 {
			t.Errorf("fact ids = %d, want 2", len(sel.FactIDs))
		}
	})

	t.Run("open loops never match", func(t *testing.T) {
		wm := types.NewWorkingMemory()
		wm.OpenLoops = []types.OpenLoopItem{
			{ID: "loop_1", Question: "alpha question", Status: types.OpenLoopOpen},
		}
		sel, err := f.RetrieveMinimal(ctx, "alpha", "alpha", nil, wm, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sel.OpenLoopIDs) != 0 {
			t.Errorf("open loop ids = %v, want empty", sel.OpenLoopIDs)
		}
	})

	t.Run("nil memory yields empty selection", func(t *testing.T) {
		sel, err := f.RetrieveMinimal(ctx, "anything", "anything", nil, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sel.Total() != 0 {
			t.Errorf("total = %d, want 0", sel.Total())
		}
	})
}

func TestFallbackPlanAndCritique(t *testing.T) {
	ctx := context.Background()
	f := NewFallback()

	plan, err := f.Plan(ctx, "obj", nil, nil, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.AssistantMessage != DisabledAssistantMessage {
		t.Errorf("assistant message = %q, want %q", plan.AssistantMessage, DisabledAssistantMessage)
	}

	critic, err := f.Critique(ctx, "obj", nil, nil, "hello", plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if critic.Verdict != types.VerdictWarn {
		t.Errorf("verdict = %q, want warn", critic.Verdict)
	}
	if len(critic.Issues) != 1 || critic.Issues[0].Severity != "low" {
		t.Errorf("issues = %+v, want one low-severity issue", critic.Issues)
	}
}
