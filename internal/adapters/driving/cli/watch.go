package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/watcher"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

var (
	watchDebounce time.Duration
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest PDFs dropped into a directory",
	Long: `Ingests every PDF in the directory that is not stored yet, then keeps
watching it: new and changed PDFs are (re)ingested once they have been quiet
for the debounce interval, and removed PDFs are deleted from the store.

Use --once to scan the directory and exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a file is processed")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "scan once and exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	w, err := newWatcher(args[0])
	if err != nil {
		return err
	}
	w.OnProcessed = func(path string, res *driving.IngestResult, err error) {
		switch {
		case err != nil:
			cmd.Printf("✗ %s: %v\n", path, err)
		case res == nil:
			cmd.Printf("- %s: removed\n", path)
		default:
			printIngestResult(cmd, res)
		}
	}

	ctx := commandContext(cmd)
	if watchOnce {
		results, err := w.Scan(ctx)
		if err != nil {
			return err
		}
		failures := 0
		for i := range results {
			if !printIngestResult(cmd, &results[i]) {
				failures++
			}
		}
		if failures > 0 {
			return errors.New("some files failed to ingest")
		}
		return nil
	}

	cmd.Printf("Watching %s. Press Ctrl+C to stop.\n", args[0])
	return runWatcher(ctx, w)
}
