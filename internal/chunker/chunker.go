// Package chunker splits document text into passages small enough to embed.
//
// Text is first cut into sentences at '.', '!' or '?' followed by
// whitespace, then sentences are packed greedily into chunks whose
// whitespace-separated word count stays within a budget. A chunk never
// splits a sentence, so a single sentence longer than the budget becomes a
// chunk of its own.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxTokens is the word budget used when callers pass a non-positive
// limit. Words are whitespace-separated tokens, not model subword tokens.
const DefaultMaxTokens = 512

// Chunk is one passage of a parent document.
type Chunk struct {
	// DocumentID identifies the document the chunk was cut from.
	DocumentID string
	// Text is the trimmed passage text. Never empty.
	Text string
	// Position is the zero-based order of the chunk within its document.
	Position int
}

// Split returns the passages of text in document order. Empty or
// whitespace-only input yields an empty slice.
func Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var (
		chunks []string
		buf    []string
		words  int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(buf, " "))
		buf = buf[:0]
		words = 0
	}

	for _, sent := range Sentences(text) {
		n := len(strings.Fields(sent))
		if len(buf) > 0 && words+n > maxTokens {
			flush()
		}
		buf = append(buf, sent)
		words += n
	}
	flush()

	return chunks
}

// Chunks is [Split] with provenance attached to each passage.
func Chunks(documentID, text string, maxTokens int) []Chunk {
	parts := Split(text, maxTokens)
	out := make([]Chunk, len(parts))
	for i, p := range parts {
		out[i] = Chunk{DocumentID: documentID, Text: p, Position: i}
	}
	return out
}

// Sentences cuts text after every '.', '!' or '?' that is followed by
// whitespace. Returned sentences are trimmed and non-empty; their internal
// whitespace is preserved.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if i < len(text) && unicode.IsSpace(next) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
