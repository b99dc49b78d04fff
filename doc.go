// Package distill maintains a bounded, continuously-updated working
// context for long-running agent sessions, so a downstream reasoning step
// never needs the full historical transcript.
//
// The engine keeps three memory tiers per run:
//
//   - STM: the verbatim tail of the most recent messages
//   - Working memory: a structured ledger of facts, decisions,
//     constraints, assumptions, definitions and open loops, with a
//     dropped-items audit trail
//   - LTM: a curated, slower-changing store of durable facts and
//     definitions
//
// Every turn runs a fixed pipeline: retrieve the minimal relevant memory,
// assemble priority-ordered injected context, plan a reply, critique it,
// and compress the transcript into a fresh working memory when the
// trigger policy fires. Compression persists a strictly-schematized
// canonical ledger (crash-safe, atomic rename) and an immutable snapshot
// file, and every stage leaves an audit event.
//
// # Quick Start
//
// Create an orchestrator over a persistence backend:
//
//	store, _ := storage.NewSQLiteStore("distill.db")
//	eng := distill.New(store, distill.WithDataDir(".distill"))
//
//	run, _ := eng.CreateRun(ctx, "ship the MVP", "C", nil)
//	res, _ := eng.Step(ctx, run.ID, "Set compression threshold to 2000 tokens")
//	fmt.Println(res.AssistantMessage, res.Metrics.ReductionPct)
//
// With reasoning enabled, compression, retrieval, planning and critique
// are model-backed:
//
//	provider, err := reasoning.NewAnthropicProviderFromEnv("claude-3-5-haiku-20241022")
//	if err != nil {
//	    // ANTHROPIC_API_KEY missing: fail before any step work begins
//	}
//	eng := distill.New(store, distill.WithProvider(provider))
//
// Without a provider (or with use_llm disabled on the run) every
// capability degrades to a deterministic fallback: additive compression,
// keyword retrieval, and fixed placeholder plan/critique outputs.
//
// # Concurrency
//
// Execution is single-threaded per run: one pipeline invocation should
// run to completion before the next begins. No lock enforces this;
// concurrent steps against the same run race on the step-index increment
// and the canonical file.
package distill
