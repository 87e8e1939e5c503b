package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/store"
)

// NewHistoryCmd constructs the `tdsqa history` command, which lists the most
// recent questions recorded by the service.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered questions",
		Long: `Print the newest entries of the query log written by 'tdsqa serve'.

The log lives at ~/.tdsqa/history.db unless TDSQA_HISTORY_DB points elsewhere.

Examples:
  tdsqa history
  tdsqa history -n 50`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.String("TDSQA_HISTORY_DB", "")
			if path == "disabled" {
				return fmt.Errorf("history: query log is disabled (TDSQA_HISTORY_DB=disabled)")
			}
			if path == "" {
				p, err := store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				path = p
			}

			hs, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer hs.Close()

			entries, err := hs.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tOUTCOME\tLATENCY\tLINKS\tQUESTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime),
					e.Outcome,
					e.Latency.Round(time.Millisecond),
					len(e.Links),
					preview(e.Question, 80),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")

	return cmd
}
