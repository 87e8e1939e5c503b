package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []string
	}{
		{
			name:      "oversize second sentence kept whole",
			text:      "Cats are mammals. Dogs are mammals too.",
			maxTokens: 3,
			want:      []string{"Cats are mammals.", "Dogs are mammals too."},
		},
		{
			name:      "single oversize sentence",
			text:      "Paris is in France.",
			maxTokens: 3,
			want:      []string{"Paris is in France."},
		},
		{
			name:      "sentences packed under budget",
			text:      "One. Two three! Four five six? Seven.",
			maxTokens: 3,
			want:      []string{"One. Two three!", "Four five six?", "Seven."},
		},
		{
			name:      "terminator without whitespace does not split",
			text:      "See v1.2 docs. Use e.g.this form.",
			maxTokens: 3,
			want:      []string{"See v1.2 docs.", "Use e.g.this form."},
		},
		{
			name:      "newline after terminator splits",
			text:      "First line.\nSecond line.",
			maxTokens: 2,
			want:      []string{"First line.", "Second line."},
		},
		{
			name:      "no terminator yields one chunk",
			text:      "  a heading without punctuation  ",
			maxTokens: 512,
			want:      []string{"a heading without punctuation"},
		},
		{
			name:      "empty input",
			text:      "",
			maxTokens: 10,
			want:      nil,
		},
		{
			name:      "whitespace only",
			text:      " \n\t ",
			maxTokens: 10,
			want:      nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Split(tc.text, tc.maxTokens)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Split(%q, %d):\n got  %q\n want %q", tc.text, tc.maxTokens, got, tc.want)
			}
		})
	}
}

func TestSplit_DefaultBudget(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("word ", 99) + "end."
	text := strings.Repeat(sentence+" ", 6)

	got := Split(text, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks with the 512-word default, got %d", len(got))
	}
	if n := len(strings.Fields(got[0])); n != 500 {
		t.Errorf("first chunk: got %d words, want 500", n)
	}
}

// TestSplit_Reconstruction checks that joining the chunks reproduces the
// sentence sequence and that only lone sentences exceed the budget.
func TestSplit_Reconstruction(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Alpha beta gamma. Delta epsilon! Zeta eta theta iota kappa? Lambda.",
		"The deadline is Friday.  Submit via the portal!\n\nLate work loses 10%. Ask on the forum?",
		"No punctuation at all here",
		"Mixed. Short. Sentences that go on for quite a few words before ending. X.",
	}

	for _, text := range inputs {
		for _, max := range []int{1, 2, 4, 8, 512} {
			chunks := Split(text, max)

			if got, want := normalize(strings.Join(chunks, " ")), normalize(text); got != want {
				t.Errorf("max=%d: reconstruction mismatch\n got  %q\n want %q", max, got, want)
			}

			for _, c := range chunks {
				if strings.TrimSpace(c) == "" {
					t.Errorf("max=%d: empty chunk in %q", max, chunks)
				}
				if len(strings.Fields(c)) > max && len(Sentences(c)) > 1 {
					t.Errorf("max=%d: multi-sentence chunk %q exceeds budget", max, c)
				}
			}
		}
	}
}

func TestChunks_Positions(t *testing.T) {
	t.Parallel()

	got := Chunks("doc-7", "One two. Three four. Five six.", 2)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.DocumentID != "doc-7" {
			t.Errorf("chunk %d: DocumentID %q", i, c.DocumentID)
		}
		if c.Position != i {
			t.Errorf("chunk %d: Position %d", i, c.Position)
		}
	}
	if got[2].Text != "Five six." {
		t.Errorf("last chunk: got %q", got[2].Text)
	}
}

func TestSplit_Restartable(t *testing.T) {
	t.Parallel()

	text := "A b c. D e f. G h i."
	first := Split(text, 4)
	second := Split(text, 4)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated calls differ: %q vs %q", first, second)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
