// Package cli provides the command line interface for ragcore.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Citation-grounded question answering over your documents",
	Long: `ragcore indexes documents into a local hybrid search index and answers
questions about them with numbered citations back to the source passages.

Index a document, then ask questions:

  ragcore index ./docs/onboarding.md
  ragcore query "how do I request access?"

Run 'ragcore watch ./docs' to keep the index in sync as files change.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
