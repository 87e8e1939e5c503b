package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of passages retrieved when the caller passes 0.
const DefaultTopK = 6

// DefaultRetriever implements the Retriever interface by combining a
// TextEmbedder and a Searcher. It embeds the query at retrieval time and
// delegates similarity search to the searcher.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder TextEmbedder

	// searcher performs the vector similarity search.
	searcher Searcher

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given embedder and
// searcher. defaultTopK sets the fallback result count when Retrieve is
// called with topK=0.
func NewRetriever(embedder TextEmbedder, searcher Searcher, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		searcher:    searcher,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant passages.
// If topK is 0 the defaultTopK configured at construction time is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	return r.RetrieveVector(ctx, vec, topK)
}

// RetrieveVector searches with an already embedded query.
func (r *DefaultRetriever) RetrieveVector(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	results, err := r.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return results, nil
}
