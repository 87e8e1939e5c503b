package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.SystemMessage("hello world"),
	}
	// user: 4 + 1 + 2 = 7; system: 4 + 1 + 2 = 7
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimPassages_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	passages := []string{"GA1 is due Sunday.", "Use uv for installs."}
	got := TrimPassages(fixed, passages, 0)
	if len(got) != 2 {
		t.Errorf("want 2 passages, got %d", len(got))
	}
}

func Test_TrimPassages_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.UserMessage(strings.Repeat("q", 40))} // 4 + 1 + 10 = 15
	passages := []string{
		strings.Repeat("a", 40), // 10 + 1
		strings.Repeat("b", 40), // 10 + 1
		strings.Repeat("c", 40), // 10 + 1
	}
	got := TrimPassages(fixed, passages, 40)
	if len(got) != 2 || got[0][0] != 'a' || got[1][0] != 'b' {
		t.Errorf("want the top two passages, got %d: %q", len(got), got)
	}
}

func Test_TrimPassages_KeepsTopPassage(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage(strings.Repeat("s", 400))}
	passages := []string{strings.Repeat("a", 400), "b"}
	got := TrimPassages(fixed, passages, 10)
	if len(got) != 1 || got[0][0] != 'a' {
		t.Errorf("want only the top passage, got %q", got)
	}
	if got := TrimPassages(fixed, nil, 10); len(got) != 0 {
		t.Errorf("want empty, got %q", got)
	}
}
