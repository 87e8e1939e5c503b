// Package budget provides token estimation and context trimming for answer
// generation. Because answers can come from several LLM backends with
// different tokenizers, it uses a conservative character heuristic:
// 1 token ≈ 4 characters of English prose or code.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead approximates the per-message framing most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models while leaving room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimPassages drops passages from the end of the ranked list until the fixed
// messages plus the remaining passages fit within maxTokens. The top-ranked
// passage is always kept, so the result is empty only when passages is.
// Non-positive maxTokens selects DefaultMaxContextTokens.
func TrimPassages(fixed []*schema.Message, passages []string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	used := EstimateMessages(fixed)
	for i, p := range passages {
		used += Estimate(p) + 1
		if used > maxTokens && i > 0 {
			return passages[:i]
		}
	}
	return passages
}
