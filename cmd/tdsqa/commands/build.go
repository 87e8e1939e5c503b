package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/describe"
	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/ingestion"
	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/rag"
	"github.com/54b3r/tdsqa-go/internal/tracing"
)

// NewBuildCmd constructs the `tdsqa build` command, which chunks and embeds
// markdown documents into an index artifact.
func NewBuildCmd() *cobra.Command {
	var (
		dirs       []string
		collection string
		out        string
		images     bool
		toQdrant   bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index artifact from markdown documents",
		Long: `Chunk and embed every .md file in the given directories and write one
gzip-compressed index artifact. The artifact is written to a temporary file
and renamed into place, so a failed build never replaces a good index.

Image references in the markdown are captioned by the chat model when
--describe-images is set, and each caption is indexed as its own record.

Examples:
  tdsqa build --dir data/md --out data/index/discourse.idx.gz
  tdsqa build --dir course/ --collection course --out data/index/course.idx.gz
  tdsqa build --dir data/md --describe-images --qdrant`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(dirs) == 0 {
				return fmt.Errorf("build: at least one --dir is required")
			}
			if out == "" {
				out = config.String("TDSQA_INDEX_OUT", "")
			}
			if out == "" {
				return fmt.Errorf("build: --out or TDSQA_INDEX_OUT is required")
			}

			var docs []rag.Document
			for _, dir := range dirs {
				d, err := ingestion.LoadMarkdownDir(dir, collection, log)
				if err != nil {
					return fmt.Errorf("build: %w", err)
				}
				log.Info("documents loaded", slog.String("dir", dir), slog.Int("count", len(d)))
				docs = append(docs, d...)
			}

			emb, err := newEmbedder(ctx, log)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			bcfg := &ingestion.Config{
				Logger:   logging.Component(log, "builder"),
				Progress: func(msg string) { log.Info(msg) },
			}
			if images {
				flush, _ := tracing.Install()
				defer flush()
				chatModel, _, err := newChatModel(ctx, log)
				if err != nil {
					return fmt.Errorf("build: %w", err)
				}
				if chatModel == nil {
					return errors.New("build: --describe-images needs a chat model (MODEL_PROVIDER is none)")
				}
				bcfg.Describer = describe.NewVisionDescriber(chatModel, "")
			}

			builder, err := newBuilder(emb, bcfg)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			path, err := builder.Build(ctx, docs, out)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			log.Info("index written", slog.String("path", path))

			if !toQdrant {
				return nil
			}
			ix, err := index.Read(path)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			qs, err := openQdrant(ctx, ix.Dimension, ix.Model)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			defer qs.Close()
			if err := qs.Upsert(ctx, ix); err != nil {
				return fmt.Errorf("build: %w", err)
			}
			log.Info("index mirrored to qdrant",
				slog.String("collection", config.String("QDRANT_COLLECTION", "tdsqa")),
				slog.Int("points", ix.Len()),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&dirs, "dir", "d", nil, "Directory of .md documents (repeatable)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection label (discourse, course); inferred per file when empty")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Artifact path (env: TDSQA_INDEX_OUT)")
	cmd.Flags().BoolVar(&images, "describe-images", false, "Caption referenced images with the chat model")
	cmd.Flags().BoolVar(&toQdrant, "qdrant", false, "Also upsert the built index into Qdrant")

	return cmd
}
