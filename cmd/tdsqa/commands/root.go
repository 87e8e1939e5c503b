// Package commands defines all Cobra CLI commands for the tdsqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/audit"
	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFiles holds the --env-file flag values.
var envFiles []string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tdsqa",
		Short: "tdsqa: answer course forum questions from an embedding index",
		Long: `tdsqa is a retrieval-augmented question answering service for a course
discussion forum.

Typical workflow:
  tdsqa fetch   --query "" --out data/posts.json     # scrape the forum
  tdsqa convert --in data/posts.json --out data/md   # posts to markdown
  tdsqa build   --dir data/md --out data/index/discourse.idx.gz
  tdsqa serve                                        # POST /api/

Providers, index paths and forum filters are read from the environment, a
.env file, or a YAML config file (~/.tdsqa/config.yaml). Environment
variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if _, err := config.LoadDotEnv(log, envFiles...); err != nil {
				return err
			}

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(logging.New(), cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.tdsqa/config.yaml)")
	root.PersistentFlags().StringArrayVar(&envFiles, "env-file", []string{".env"}, "Dotenv file loaded before the config file (repeatable)")

	root.AddCommand(
		NewFetchCmd(),
		NewConvertCmd(),
		NewBuildCmd(),
		NewSearchCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
