package qa

import (
	"context"
	"log/slog"

	"github.com/54b3r/tdsqa-go/internal/convert"
	"github.com/54b3r/tdsqa-go/internal/discourse"
	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/ingestion"
)

// PostFetcher yields forum posts matching a query.
type PostFetcher interface {
	FetchPosts(ctx context.Context, query string) ([]discourse.Post, error)
}

// LiveSource fetches forum posts for each question and indexes them in
// memory next to the base store. The merged store belongs to one request and
// is never published.
type LiveSource struct {
	// Fetcher yields posts for the question.
	Fetcher PostFetcher
	// Converter renders posts as documents.
	Converter *convert.Converter
	// Builder embeds the documents into a private index.
	Builder *ingestion.Builder
	// Base is the published store the fresh records are merged with.
	Base *index.Store
}

// merged returns base plus freshly indexed posts, or nil when any live step
// fails so the caller falls back to the base searcher.
func (l *LiveSource) merged(ctx context.Context, question string, log *slog.Logger) *index.Store {
	if l.Base == nil || l.Fetcher == nil || l.Converter == nil || l.Builder == nil {
		return nil
	}
	posts, err := l.Fetcher.FetchPosts(ctx, question)
	if err != nil {
		log.Warn("qa: live fetch failed, using base index", slog.String("error", err.Error()))
		return nil
	}
	docs := l.Converter.Posts(posts)
	if len(docs) == 0 {
		log.Info("qa: live fetch found no posts, using base index")
		return nil
	}
	ix, err := l.Builder.BuildIndex(ctx, docs)
	if err != nil {
		log.Warn("qa: live index build failed, using base index", slog.String("error", err.Error()))
		return nil
	}
	fresh, err := index.NewStore(ix)
	if err != nil {
		log.Warn("qa: live index rejected", slog.String("error", err.Error()))
		return nil
	}
	store, err := index.Merge(l.Base, fresh)
	if err != nil {
		log.Warn("qa: live index incompatible with base index", slog.String("error", err.Error()))
		return nil
	}
	log.Debug("qa: merged live posts", slog.Int("posts", len(posts)), slog.Int("records", ix.Len()))
	return store
}
