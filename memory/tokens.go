// Package memory implements the pure logic over working memory: token
// estimation, supersession derivation, minimal-context assembly, and
// post-compression reconciliation.
package memory

import (
	"strings"

	"github.com/macrador/distill/types"
)

// EstimateTokens is the deterministic token proxy used for all metrics:
// ceil(len(text)/4). It is reproducible across environments without a real
// tokenizer, and it is applied identically to the baseline transcript and
// the injected context so reduction percentages stay comparable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateMessages sums the estimate over message contents.
func EstimateMessages(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// TranscriptBlob renders messages as the role-prefixed concatenation used
// for the baseline token count.
func TranscriptBlob(messages []types.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, string(m.Role)+":"+m.Content)
	}
	return strings.Join(lines, "\n")
}
