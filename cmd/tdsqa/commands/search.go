package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

// NewSearchCmd constructs the `tdsqa search` command, which prints the ranked
// passages for a query without generating an answer.
func NewSearchCmd() *cobra.Command {
	var (
		topK    int
		indexes []string
		backend string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the top-ranked passages for a query",
		Long: `Embed the query and print the best matching passages with their scores.
Useful for checking an index before serving it.

Examples:
  tdsqa search "docker vs podman"
  tdsqa search --top-k 10 --index data/index/course.idx.gz "project 1 deadline"
  tdsqa search --backend qdrant "GA4 bonus marks"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := newEmbedder(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			searcher, closeSearcher, err := newSearcher(ctx, backend, indexes, emb.Model())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer closeSearcher()

			r, err := rag.NewRetriever(emb, searcher, config.Int("RETRIEVAL_TOP_K", rag.DefaultTopK))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			results, err := r.Retrieve(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tSCORE\tTYPE\tSOURCE\tTEXT")
			for i, res := range results {
				src := res.Metadata.URL
				if src == "" {
					src = res.Metadata.File
				}
				fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\t%s\n", i+1, res.Score, res.Metadata.Type, src, preview(res.Metadata.Content, 80))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages (env: RETRIEVAL_TOP_K, default 6)")
	cmd.Flags().StringArrayVar(&indexes, "index", nil, "Index artifact to load (repeatable, env: TDSQA_INDEX_PATHS)")
	cmd.Flags().StringVar(&backend, "backend", "", "Retrieval backend: memory or qdrant (env: RETRIEVAL_BACKEND)")

	return cmd
}

// newSearcher opens the selected retrieval backend.
func newSearcher(ctx context.Context, backend string, indexes []string, embModel string) (rag.Searcher, func(), error) {
	if backend == "" {
		backend = config.String("RETRIEVAL_BACKEND", backendMemory)
	}
	log := logging.FromContext(ctx)
	switch backend {
	case backendMemory:
		sc, err := scoring()
		if err != nil {
			return nil, nil, err
		}
		st, err := loadStore(indexPaths(indexes), embModel, log)
		if err != nil {
			return nil, nil, err
		}
		return rag.NewMemorySearcher(st, sc), func() {}, nil
	case backendQdrant:
		qs, err := openQdrant(ctx, 0, embModel)
		if err != nil {
			return nil, nil, err
		}
		return qs, func() { _ = qs.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown retrieval backend %q (valid: memory, qdrant)", backend)
	}
}

// preview flattens s to one line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
