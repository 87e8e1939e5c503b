// Package ingestion builds retrieval indices from source documents.
// Text documents are chunked, their markdown image references are captioned,
// every unit is embedded, and the resulting records are collected into an
// [index.Index] whose order depends only on the input order.
// The builder is invoked by the `tdsqa build` command and, per request, by the
// live-fetch path of the question pipeline.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/tdsqa-go/internal/chunker"
	"github.com/54b3r/tdsqa-go/internal/describe"
	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/rag"
	"github.com/54b3r/tdsqa-go/internal/version"
)

// ErrEmptyIndex is returned when a build produced no embedded records.
var ErrEmptyIndex = errors.New("ingestion: no embeddings produced")

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 4

// imageRef matches markdown image syntax and captures the reference.
var imageRef = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// Embedder is the embedding contract the builder needs: single-text embedding
// plus the model name recorded in the artifact.
type Embedder interface {
	rag.TextEmbedder
	Model() string
}

// Config holds the configuration for a Builder.
type Config struct {
	// MaxTokens is the chunk word budget. Defaults to chunker.DefaultMaxTokens.
	MaxTokens int

	// Concurrency bounds the documents processed in parallel.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// Describer captions image references found in text documents.
	// Nil disables captioning.
	Describer describe.Describer

	// Progress, when set, is called once per document with a short status
	// line. It is called from worker goroutines.
	Progress func(msg string)

	// Logger receives skip warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Builder turns documents into an index.
type Builder struct {
	// embedder converts each unit into a vector.
	embedder Embedder

	// cfg holds the resolved builder configuration.
	cfg Config
}

// unit is one embeddable piece of a document.
type unit struct {
	text string
	meta index.Metadata
}

// record is one embedded unit.
type record struct {
	vec  []float32
	meta index.Metadata
}

// NewBuilder constructs a Builder. A nil cfg selects the defaults.
func NewBuilder(embedder Embedder, cfg *Config) (*Builder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	b := &Builder{embedder: embedder}
	if cfg != nil {
		b.cfg = *cfg
	}
	if b.cfg.MaxTokens <= 0 {
		b.cfg.MaxTokens = chunker.DefaultMaxTokens
	}
	if b.cfg.Concurrency <= 0 {
		b.cfg.Concurrency = DefaultConcurrency
	}
	if b.cfg.Progress == nil {
		b.cfg.Progress = func(string) {}
	}
	if b.cfg.Logger == nil {
		b.cfg.Logger = slog.Default()
	}
	return b, nil
}

// Build produces an index from docs and publishes it at outPath. Nothing is
// written when the build fails or yields no records. It returns outPath.
func (b *Builder) Build(ctx context.Context, docs []rag.Document, outPath string) (string, error) {
	ix, err := b.BuildIndex(ctx, docs)
	if err != nil {
		return "", err
	}
	if err := index.Write(outPath, ix); err != nil {
		return "", fmt.Errorf("ingestion: %w", err)
	}
	b.cfg.Logger.Info("ingestion: index written",
		slog.String("path", outPath),
		slog.Int("records", ix.Len()),
		slog.Int("dimension", ix.Dimension),
		slog.String("model", ix.Model),
	)
	return outPath, nil
}

// BuildIndex embeds docs into an in-memory index. Records are ordered by
// document, then text chunks by position, then image captions by reference
// order. Units whose embedding fails are logged and skipped.
func (b *Builder) BuildIndex(ctx context.Context, docs []rag.Document) (*index.Index, error) {
	results := make([][]record, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i := range docs {
		g.Go(func() error {
			recs, err := b.document(gctx, &docs[i])
			if err != nil {
				return err
			}
			results[i] = recs
			b.cfg.Progress(fmt.Sprintf("embedded %s: %d records", docs[i].ID, len(recs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion: build cancelled: %w", err)
	}

	ix := &index.Index{
		Model:          b.embedder.Model(),
		BuiltAt:        time.Now().UTC(),
		BuilderVersion: version.Version,
	}
	for _, recs := range results {
		for _, r := range recs {
			if err := ix.Append(r.vec, r.meta); err != nil {
				return nil, fmt.Errorf("ingestion: %s: %w", r.meta.File, err)
			}
		}
	}
	if ix.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	return ix, nil
}

// document embeds every unit of one document. Only context cancellation is
// returned as an error; unit failures are skipped.
func (b *Builder) document(ctx context.Context, doc *rag.Document) ([]record, error) {
	units := b.units(ctx, doc)
	out := make([]record, 0, len(units))
	for _, u := range units {
		vec, err := b.embedder.Embed(ctx, u.text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.cfg.Logger.Warn("ingestion: skipping unit",
				slog.String("document", doc.ID),
				slog.String("type", string(u.meta.Type)),
				slog.Int("position", u.meta.Position),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, record{vec: vec, meta: u.meta})
	}
	return out, nil
}

// units expands a document into its embeddable pieces.
func (b *Builder) units(ctx context.Context, doc *rag.Document) []unit {
	base := index.Metadata{
		File:       doc.File,
		SourceDir:  doc.SourceDir,
		URL:        doc.URL,
		Collection: doc.Collection,
		DocumentID: doc.ID,
	}

	if doc.Kind == rag.KindImageCaption {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			return nil
		}
		m := base
		m.Type = index.TypeImage
		m.Content = text
		return []unit{{text: text, meta: m}}
	}

	var out []unit
	for _, c := range chunker.Chunks(doc.ID, doc.Text, b.cfg.MaxTokens) {
		m := base
		m.Type = index.TypeText
		m.Content = c.Text
		m.Position = c.Position
		out = append(out, unit{text: c.Text, meta: m})
	}

	if b.cfg.Describer == nil {
		return out
	}
	pos := len(out)
	for _, ref := range ImageRefs(doc.Text) {
		caption, err := b.caption(ctx, doc, ref)
		if err != nil {
			b.cfg.Logger.Warn("ingestion: skipping image",
				slog.String("document", doc.ID),
				slog.String("ref", ref),
				slog.String("error", err.Error()),
			)
			continue
		}
		m := base
		m.Type = index.TypeImage
		m.Content = caption
		m.Position = pos
		pos++
		out = append(out, unit{text: caption, meta: m})
	}
	return out
}

// caption describes one image reference. Relative references are resolved
// against the document's source directory and sent inline.
func (b *Builder) caption(ctx context.Context, doc *rag.Document, ref string) (string, error) {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return b.cfg.Describer.Describe(ctx, ref)
	}
	path := ref
	if !filepath.IsAbs(path) && doc.SourceDir != "" {
		path = filepath.Join(doc.SourceDir, path)
	}
	data, err := describe.FileDataURL(path)
	if err != nil {
		return "", err
	}
	return b.cfg.Describer.Describe(ctx, data)
}

// ImageRefs returns the non-empty markdown image references in text, in order.
func ImageRefs(text string) []string {
	var refs []string
	for _, m := range imageRef.FindAllStringSubmatch(text, -1) {
		// Drop an optional title: ![alt](shot.png "title").
		if f := strings.Fields(m[1]); len(f) > 0 {
			refs = append(refs, f[0])
		}
	}
	return refs
}
