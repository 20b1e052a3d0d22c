package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsumiki-ai/ragcore/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and reindex documents as they change",
	Long: `Watches the given directory for .md and .txt files. When a file is
created or written, the corresponding document is reindexed after a
short debounce. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := ensureIndexer(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watcher.NewWatcher(watcher.Config{
		Dir:     args[0],
		Indexer: indexerService,
	})
	if err != nil {
		return err
	}
	w.Start(ctx)
	defer w.Stop()

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", args[0])

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	cmd.Println("Stopping.")
	return nil
}
