package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/discourse"
	"github.com/54b3r/tdsqa-go/internal/logging"
)

// NewFetchCmd constructs the `tdsqa fetch` command, which scrapes forum posts
// matching a search into a posts JSON file.
func NewFetchCmd() *cobra.Command {
	var (
		query     string
		out       string
		category  string
		from      string
		to        string
		maxTopics int
		login     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch forum posts into a posts JSON file",
		Long: `Search the Discourse forum and download every post of each matching topic.

The search is restricted by the configured category and date range
(DISCOURSE_CATEGORY, DISCOURSE_DATE_FROM, DISCOURSE_DATE_TO); flags override
them. Authentication uses DISCOURSE_COOKIE when set, otherwise a headless
browser login with DISCOURSE_USERNAME and DISCOURSE_PASSWORD.

Examples:
  tdsqa fetch --out data/posts.json
  tdsqa fetch --query "GA5" --from 2025-01-01 --to 2025-04-14 --out data/ga5.json
  tdsqa fetch --login --out data/posts.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := discourseConfig()
			if cmd.Flags().Changed("category") {
				cfg.Category = category
			}
			if cmd.Flags().Changed("from") {
				cfg.DateFrom = from
			}
			if cmd.Flags().Changed("to") {
				cfg.DateTo = to
			}
			if login {
				cfg.Cookie = ""
			}
			cfg.MaxTopics = maxTopics

			client, err := newDiscourseClient(ctx, cfg, logging.Component(log, "discourse"))
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}

			log.Info("fetching posts", slog.String("search", client.SearchQuery(query)))
			posts, err := client.FetchPosts(ctx, query)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			if err := discourse.WritePosts(out, posts); err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			log.Info("posts written", slog.String("path", out), slog.Int("count", len(posts)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search terms (empty matches every topic in the filters)")
	cmd.Flags().StringVarP(&out, "out", "o", "posts.json", "Posts JSON file to write")
	cmd.Flags().StringVar(&category, "category", "", "Category slug filter (env: DISCOURSE_CATEGORY)")
	cmd.Flags().StringVar(&from, "from", "", "Earliest post date, YYYY-MM-DD (env: DISCOURSE_DATE_FROM)")
	cmd.Flags().StringVar(&to, "to", "", "Latest post date, YYYY-MM-DD (env: DISCOURSE_DATE_TO)")
	cmd.Flags().IntVar(&maxTopics, "max-topics", 0, "Cap on topics fetched (0 = no cap)")
	cmd.Flags().BoolVar(&login, "login", false, "Ignore DISCOURSE_COOKIE and sign in with the browser")

	return cmd
}
