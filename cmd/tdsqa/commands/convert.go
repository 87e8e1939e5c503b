package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/convert"
	"github.com/54b3r/tdsqa-go/internal/logging"
)

// NewConvertCmd constructs the `tdsqa convert` command, which renders a posts
// JSON file as one markdown document per post.
func NewConvertCmd() *cobra.Command {
	var (
		in      string
		out     string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a posts JSON file into markdown documents",
		Long: `Write one {topic_id}_{post_id}.md file per post. Each file starts with a
header carrying the topic title, author, date and post URL, followed by the
post rendered as markdown. Posts with no content are skipped.

Examples:
  tdsqa convert --in data/posts.json --out data/md`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			posts, err := convert.ReadPosts(in)
			if err != nil {
				return fmt.Errorf("convert: %w", err)
			}
			if baseURL == "" {
				baseURL = config.String("DISCOURSE_BASE_URL", "")
			}

			docs := convert.New(baseURL, logging.Component(log, "convert")).Posts(posts)
			n, err := convert.WriteMarkdown(out, docs)
			if err != nil {
				return fmt.Errorf("convert: %w", err)
			}
			log.Info("markdown written",
				slog.String("dir", out),
				slog.Int("posts", len(posts)),
				slog.Int("files", n),
				slog.Int("skipped", len(posts)-n),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "posts.json", "Posts JSON file to read")
	cmd.Flags().StringVarP(&out, "out", "o", "markdown", "Directory to write markdown files into")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Forum root used to absolutise links (env: DISCOURSE_BASE_URL)")

	return cmd
}
