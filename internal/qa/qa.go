// Package qa answers one user question end to end: enrich the question with
// image and linked-page text, embed it, retrieve ranked passages, and hand them
// to the answer generator. Every failure maps to one of the package sentinels
// so the HTTP layer can choose a status code.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/tdsqa-go/internal/answer"
	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

// Sentinel errors. Callers test them with errors.Is.
var (
	// ErrBadInput reports an empty question or an image or URL that could
	// not be processed.
	ErrBadInput = errors.New("qa: bad input")
	// ErrNoContext reports that retrieval found nothing to answer from.
	ErrNoContext = errors.New("qa: no relevant content found")
	// ErrTimeout reports that the end-to-end budget expired.
	ErrTimeout = errors.New("qa: request timed out")
)

const (
	// DefaultTimeout is the end-to-end budget for one question.
	DefaultTimeout = 30 * time.Second
	// DefaultLinkCount caps the source links in a response.
	DefaultLinkCount = 3
	// linkTextChars is the number of passage characters quoted per link.
	linkTextChars = 100
)

// Request is one question with optional enrichment.
type Request struct {
	// Question is the user's question. Required.
	Question string `json:"question"`
	// Image is a base64 image, a data URL, or an http(s) image URL.
	Image string `json:"image,omitempty"`
	// URL is a page whose text is added to the question.
	URL string `json:"url,omitempty"`
}

// Link is one source reference returned with an answer.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Response is the answer to one question.
type Response struct {
	Answer string `json:"answer"`
	Links  []Link `json:"links"`
}

// ImageDescriber captions an image reference.
type ImageDescriber interface {
	Describe(ctx context.Context, ref string) (string, error)
}

// PageExtractor returns the readable text of a web page.
type PageExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Config holds the collaborators and tuning of a Pipeline.
type Config struct {
	// Embedder embeds the enriched question. Required.
	Embedder rag.TextEmbedder

	// Searcher serves the base index. Required.
	Searcher rag.Searcher

	// Generator writes the answer. Defaults to answer.Extractive.
	Generator answer.Generator

	// Describer captions request images. Nil rejects requests with images.
	Describer ImageDescriber

	// Extractor reads request URLs. Nil rejects requests with URLs.
	Extractor PageExtractor

	// Live, when set, merges freshly fetched forum posts into the base store
	// for each request.
	Live *LiveSource

	// Scoring is used for the live merged store.
	Scoring rag.Scoring

	// TopK is the number of passages retrieved. Defaults to rag.DefaultTopK.
	TopK int

	// LinkCount caps the returned links. Defaults to DefaultLinkCount.
	LinkCount int

	// Timeout is the end-to-end budget. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline answers questions. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	retriever *rag.DefaultRetriever
}

// New validates cfg and returns a Pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qa: config must not be nil")
	}
	p := &Pipeline{cfg: *cfg}
	if p.cfg.TopK <= 0 {
		p.cfg.TopK = rag.DefaultTopK
	}
	if p.cfg.LinkCount <= 0 {
		p.cfg.LinkCount = DefaultLinkCount
	}
	if p.cfg.Timeout <= 0 {
		p.cfg.Timeout = DefaultTimeout
	}
	if p.cfg.Generator == nil {
		p.cfg.Generator = answer.Extractive{}
	}
	if p.cfg.Logger == nil {
		p.cfg.Logger = slog.Default()
	}
	r, err := rag.NewRetriever(p.cfg.Embedder, p.cfg.Searcher, p.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("qa: %w", err)
	}
	p.retriever = r
	return p, nil
}

// Ask answers req within the configured timeout. The answer step is only
// attempted when retrieval returned passages.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrBadInput)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	query, err := p.enrich(ctx, question, req)
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	vec, err := p.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, p.classify(ctx, fmt.Errorf("qa: embedding question: %w", err))
	}

	results, err := p.retrieve(ctx, question, vec)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if len(results) == 0 {
		return nil, ErrNoContext
	}

	text, err := p.cfg.Generator.Generate(ctx, query, results)
	if err != nil {
		return nil, p.classify(ctx, fmt.Errorf("qa: generating answer: %w", err))
	}

	return &Response{Answer: text, Links: Links(results, p.cfg.LinkCount)}, nil
}

// enrich prefixes an image caption and appends linked-page text.
func (p *Pipeline) enrich(ctx context.Context, question string, req Request) (string, error) {
	query := question

	if ref := strings.TrimSpace(req.Image); ref != "" {
		if p.cfg.Describer == nil {
			return "", fmt.Errorf("%w: image input is not enabled", ErrBadInput)
		}
		caption, err := p.cfg.Describer.Describe(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: image processing failed: %w", ErrBadInput, err)
		}
		query = "Image description: " + caption + "\nQuestion: " + query
	}

	if u := strings.TrimSpace(req.URL); u != "" {
		if p.cfg.Extractor == nil {
			return "", fmt.Errorf("%w: url input is not enabled", ErrBadInput)
		}
		text, err := p.cfg.Extractor.Extract(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: url processing failed: %w", ErrBadInput, err)
		}
		if text != "" {
			query += "\n\nLinked page content:\n" + text
		}
	}
	return query, nil
}

// retrieve searches the base index, or a request-private merge of the base
// index and live posts when live fetching is on.
func (p *Pipeline) retrieve(ctx context.Context, question string, vec []float32) ([]rag.Result, error) {
	if p.cfg.Live != nil {
		if store := p.cfg.Live.merged(ctx, question, p.cfg.Logger); store != nil {
			r, err := rag.NewRetriever(p.cfg.Embedder, rag.NewMemorySearcher(store, p.cfg.Scoring), p.cfg.TopK)
			if err != nil {
				return nil, fmt.Errorf("qa: %w", err)
			}
			return r.RetrieveVector(ctx, vec, 0)
		}
	}
	return p.retriever.RetrieveVector(ctx, vec, 0)
}

// classify maps deadline expiry to ErrTimeout and leaves other errors as is.
func (p *Pipeline) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// Links returns source links for the n highest-ranked results, keeping only
// those that carry a URL, in rank order and one per URL. Lower-ranked results
// never contribute. Link text is the first 100 characters of the passage
// followed by "...".
func Links(results []rag.Result, n int) []Link {
	top := results[:min(max(n, 0), len(results))]
	links := make([]Link, 0, len(top))
	seen := make(map[string]bool, len(top))
	for _, r := range top {
		if !r.Metadata.HasURL() || seen[r.Metadata.URL] {
			continue
		}
		seen[r.Metadata.URL] = true
		links = append(links, Link{URL: r.Metadata.URL, Text: snippet(r.Metadata.Content)})
	}
	return links
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) > linkTextChars {
		s = string([]rune(s)[:linkTextChars])
	}
	return s + "..."
}

// Store returns the base store when the searcher is in-memory, else nil.
func (p *Pipeline) Store() *index.Store {
	if m, ok := p.cfg.Searcher.(*rag.MemorySearcher); ok {
		return m.Store()
	}
	return nil
}
