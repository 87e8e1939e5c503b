package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

type fakeChat struct {
	reply string
	err   error
	last  []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func passage(content, url, file string) rag.Result {
	return rag.Result{Metadata: index.Metadata{Content: content, URL: url, File: file}}
}

func TestChatGenerator_PromptShape(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: " Use gpt-4o-mini through the proxy. "}
	g := NewChatGenerator(chat, 0, logging.Discard())

	got, err := g.Generate(context.Background(), "Which model should GA5 use?", []rag.Result{
		passage("Use gpt-4o-mini via the AI proxy.", "https://discourse.example.org/t/ga5/155939/3", "155939_1.md"),
		passage("GA5 covers LLM APIs.", "", "ga5.md"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Use gpt-4o-mini through the proxy." {
		t.Errorf("answer: %q", got)
	}

	if len(chat.last) != 2 || chat.last[0].Role != schema.System {
		t.Fatalf("messages: %+v", chat.last)
	}
	user := chat.last[1].Content
	for _, want := range []string{
		"[1] (https://discourse.example.org/t/ga5/155939/3) Use gpt-4o-mini via the AI proxy.",
		"[2] (ga5.md) GA5 covers LLM APIs.",
		"Question: Which model should GA5 use?",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestChatGenerator_TrimsLowestRanked(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "ok"}
	g := NewChatGenerator(chat, 200, logging.Discard())

	big := strings.Repeat("x", 600)
	if _, err := g.Generate(context.Background(), "q", []rag.Result{
		passage("top passage", "", "a.md"),
		passage(big, "", "b.md"),
	}); err != nil {
		t.Fatal(err)
	}
	user := chat.last[1].Content
	if !strings.Contains(user, "top passage") || strings.Contains(user, big) {
		t.Errorf("expected only the top passage in prompt:\n%s", user)
	}
}

func TestChatGenerator_Errors(t *testing.T) {
	t.Parallel()

	g := NewChatGenerator(&fakeChat{reply: "x"}, 0, nil)
	if _, err := g.Generate(context.Background(), "q", nil); !errors.Is(err, ErrNoPassages) {
		t.Errorf("expected ErrNoPassages, got %v", err)
	}

	sentinel := errors.New("quota")
	g = NewChatGenerator(&fakeChat{err: sentinel}, 0, nil)
	if _, err := g.Generate(context.Background(), "q", []rag.Result{passage("p", "", "f")}); !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped model error, got %v", err)
	}

	g = NewChatGenerator(&fakeChat{reply: "  "}, 0, nil)
	if _, err := g.Generate(context.Background(), "q", []rag.Result{passage("p", "", "f")}); err == nil {
		t.Error("expected error for empty answer")
	}
}

func TestExtractive(t *testing.T) {
	t.Parallel()

	var e Extractive
	if _, err := e.Generate(context.Background(), "q", nil); !errors.Is(err, ErrNoPassages) {
		t.Errorf("expected ErrNoPassages, got %v", err)
	}

	got, err := e.Generate(context.Background(), "q", []rag.Result{passage(" Deadline is 31 May. ", "", "f")})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Most relevant material: Deadline is 31 May." {
		t.Errorf("got %q", got)
	}

	got, _ = e.Generate(context.Background(), "q", []rag.Result{passage(strings.Repeat("y", 700), "", "f")})
	if !strings.HasSuffix(got, "...") || len(got) != len("Most relevant material: ")+extractiveLimit+3 {
		t.Errorf("long passage not truncated: len=%d", len(got))
	}
}
