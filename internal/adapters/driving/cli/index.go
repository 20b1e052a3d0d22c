package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsumiki-ai/ragcore/internal/watcher"
)

var indexID string

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index documents into the local search store",
	Long: `Reads each file, splits it into chunks, embeds them, and replaces the
document's entry in the search index. The document ID defaults to the
file name without its extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexID, "id", "", "document ID override (single file only)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := ensureIndexer(); err != nil {
		return err
	}
	if indexID != "" && len(args) > 1 {
		return fmt.Errorf("--id cannot be used with multiple files")
	}

	ctx := context.Background()
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		documentID := indexID
		if documentID == "" {
			documentID = watcher.DocumentID(path)
		}

		if err := indexerService.Reindex(ctx, documentID, string(content)); err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		cmd.Printf("Indexed %s as document %q\n", path, documentID)
	}
	return nil
}
