// Package budget provides token budget estimation for composed prompts.
// Because the composer supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// within 8k-context models while leaving room for the output.
	DefaultMaxContextTokens = 6000

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitChunks returns the longest prefix of chunks whose estimated size, added
// to reserved, stays within maxTokens. chunks are expected in descending
// relevance so the least relevant are dropped first. A non-positive maxTokens
// disables trimming.
func FitChunks(chunks []string, reserved, maxTokens int) []string {
	if maxTokens <= 0 {
		return chunks
	}
	used := reserved
	for i, c := range chunks {
		used += Estimate(c)
		if used > maxTokens {
			return chunks[:i]
		}
	}
	return chunks
}
