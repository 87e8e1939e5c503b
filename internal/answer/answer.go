// Package answer turns a question and its ranked passages into an answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/tdsqa-go/internal/budget"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

// ErrNoPassages is returned when Generate is called without context.
var ErrNoPassages = errors.New("answer: no passages")

// SystemPrompt instructs the model to answer only from the supplied context.
const SystemPrompt = `You are a teaching assistant for the Tools in Data Science course.
Answer the student's question using only the numbered context passages.
If the passages do not contain the answer, say so briefly instead of guessing.
Be concise. Quote commands, file names and deadlines exactly as they appear.`

// Generator produces an answer from ranked passages.
type Generator interface {
	Generate(ctx context.Context, question string, passages []rag.Result) (string, error)
}

// ChatGenerator answers through an eino chat model.
type ChatGenerator struct {
	model     model.BaseChatModel
	maxTokens int
	log       *slog.Logger
}

// NewChatGenerator returns a ChatGenerator. maxContextTokens bounds the
// prompt; zero selects budget.DefaultMaxContextTokens.
func NewChatGenerator(m model.BaseChatModel, maxContextTokens int, log *slog.Logger) *ChatGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &ChatGenerator{model: m, maxTokens: maxContextTokens, log: log}
}

// Generate sends the system prompt, the numbered passages and the question to
// the model. Passages that do not fit the context budget are dropped lowest
// rank first.
func (g *ChatGenerator) Generate(ctx context.Context, question string, passages []rag.Result) (string, error) {
	if len(passages) == 0 {
		return "", ErrNoPassages
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Metadata.Content
	}
	fixed := []*schema.Message{schema.SystemMessage(SystemPrompt), schema.UserMessage(question)}
	kept := budget.TrimPassages(fixed, texts, g.maxTokens)
	if len(kept) < len(texts) {
		g.log.Warn("answer: trimmed passages to fit context budget",
			slog.Int("kept", len(kept)),
			slog.Int("dropped", len(texts)-len(kept)),
		)
	}

	msgs := []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(Prompt(question, passages[:len(kept)])),
	}
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("answer: generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("answer: model returned an empty answer")
	}
	return strings.TrimSpace(resp.Content), nil
}

// Prompt renders the user turn: numbered passages with their sources,
// followed by the question.
func Prompt(question string, passages []rag.Result) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "\n[%d] ", i+1)
		if src := source(p.Metadata.URL, p.Metadata.File); src != "" {
			fmt.Fprintf(&b, "(%s) ", src)
		}
		b.WriteString(strings.TrimSpace(p.Metadata.Content))
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func source(url, file string) string {
	if url != "" {
		return url
	}
	return file
}

// extractiveLimit caps the characters quoted by Extractive.
const extractiveLimit = 600

// Extractive answers without a language model by quoting the top passage.
type Extractive struct{}

// Generate implements Generator.
func (Extractive) Generate(_ context.Context, _ string, passages []rag.Result) (string, error) {
	if len(passages) == 0 {
		return "", ErrNoPassages
	}
	top := []rune(strings.TrimSpace(passages[0].Metadata.Content))
	text := string(top)
	if len(top) > extractiveLimit {
		text = string(top[:extractiveLimit]) + "..."
	}
	return "Most relevant material: " + text, nil
}
