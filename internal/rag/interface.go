// Package rag defines the retrieval contracts used by the question pipeline
// and the in-memory scorer that serves them from an [index.Store].
// Concrete backends (in-memory, Qdrant) satisfy [Searcher] so the pipeline
// never depends on a specific store.
package rag

import (
	"context"
	"errors"

	"github.com/54b3r/tdsqa-go/internal/index"
)

// ErrDimensionMismatch is returned when a query vector's length differs from
// the store's dimension.
var ErrDimensionMismatch = errors.New("rag: query dimension does not match store")

// Kind classifies a source document.
type Kind string

const (
	// KindText is a markdown document whose text is chunked and whose image
	// references are captioned.
	KindText Kind = "text"
	// KindImageCaption is a pre-computed caption embedded as a single unit.
	KindImageCaption Kind = "image_caption"
)

// Document is one source unit fed to the index builder. It is immutable once
// produced.
type Document struct {
	// ID identifies the document, e.g. "{topic_id}_{post_id}" for forum posts.
	ID string

	// Kind is text or image_caption.
	Kind Kind

	// Collection names the origin collection ("discourse", "course").
	Collection string

	// Text is the document body.
	Text string

	// File is the base name of the file the document was read from.
	File string

	// SourceDir is the directory the document was read from.
	SourceDir string

	// URL is the canonical address of the document, when it has one.
	URL string
}

// Result is one ranked retrieval hit.
type Result struct {
	// Metadata describes the matched passage.
	Metadata index.Metadata

	// Score is the similarity between the query and the passage.
	Score float64

	// Index is the record's position in the store, or -1 when the backend
	// does not expose one.
	Index int
}

// Embedder converts a batch of texts into embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts texts into their embeddings. The returned slice is
	// parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TextEmbedder embeds a single text. It is the contract the retriever and
// the index builder depend on.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher scores a query vector against a store and returns the top-k
// results in descending score order.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)
}

// Retriever embeds query text and returns the most relevant passages.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant passages for query.
	Retrieve(ctx context.Context, query string, topK int) ([]Result, error)
}
