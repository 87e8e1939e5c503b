package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/qa"
	"github.com/54b3r/tdsqa-go/internal/tracing"
)

// NewAskCmd constructs the `tdsqa ask` command, which answers one question
// through the same pipeline as POST /api/ and prints the result.
func NewAskCmd() *cobra.Command {
	var (
		image   string
		pageURL string
		indexes []string
		backend string
		live    bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the command line",
		Long: `Answer a question from the loaded index, exactly as the HTTP service would.

Examples:
  tdsqa ask "Should I use gpt-4o-mini or gpt-3.5-turbo for GA5?"
  tdsqa ask --image screenshot.png "What does this error mean?"
  tdsqa ask --url https://example.org/notes "Is this covered in the course?"
  tdsqa ask --json "When is the ROE exam?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush, _ := tracing.Install()
			defer flush()

			asm, err := buildPipeline(ctx, pipelineOptions{indexPaths: indexes, backend: backend, live: live}, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer asm.Close()

			req := qa.Request{Question: strings.Join(args, " "), URL: pageURL}
			if image != "" {
				if req.Image, err = imageRef(image); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			resp, err := asm.pipeline.Ask(ctx, req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, resp.Answer)
			if len(resp.Links) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, l := range resp.Links {
					fmt.Fprintf(out, "  - %s\n    %s\n", l.URL, l.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image file, URL, data URL, or base64 to describe alongside the question")
	cmd.Flags().StringVar(&pageURL, "url", "", "Web page whose text is added to the question")
	cmd.Flags().StringArrayVar(&indexes, "index", nil, "Index artifact to load (repeatable, env: TDSQA_INDEX_PATHS)")
	cmd.Flags().StringVar(&backend, "backend", "", "Retrieval backend: memory or qdrant (env: RETRIEVAL_BACKEND)")
	cmd.Flags().BoolVar(&live, "live", false, "Also fetch and index matching forum posts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")

	return cmd
}
