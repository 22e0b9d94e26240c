package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

var ingestID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Ingest PDF files",
	Long: `Extracts the text of each PDF, splits it into chunks, embeds the chunks
and stores them for retrieval.

Files are processed concurrently. A file that is already stored is skipped;
a file whose previous ingestion failed is processed again.

Examples:
  ragbot ingest manual.pdf
  ragbot ingest docs/*.pdf
  ragbot ingest --id handbook-2026 handbook.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (single file only)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := ingestService()
	if err != nil {
		return err
	}
	if ingestID != "" && len(args) != 1 {
		return errors.New("--id can only be used with a single file")
	}

	var results []driving.IngestResult
	if ingestID != "" {
		results = []driving.IngestResult{ingestWithID(cmd, svc, args[0])}
	} else {
		results = svc.IngestFiles(commandContext(cmd), args)
	}

	failures := 0
	for i := range results {
		if !printIngestResult(cmd, &results[i]) {
			failures++
		}
	}

	if len(results) > 1 {
		cmd.Printf("\n%d of %d files ingested\n", len(results)-failures, len(results))
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(results))
	}
	return nil
}

func ingestWithID(cmd *cobra.Command, svc driving.IngestService, path string) driving.IngestResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return driving.IngestResult{Path: path, Status: domain.StatusFailed, Err: err}
	}
	result, err := svc.Ingest(commandContext(cmd), ingestID, filepath.Base(path), data)
	if result == nil {
		result = &driving.IngestResult{DocumentID: ingestID, Status: domain.StatusFailed}
	}
	result.Path = path
	if err != nil && result.Err == nil {
		result.Err = err
	}
	return *result
}

// printIngestResult reports one file. It returns false for a failure.
func printIngestResult(cmd *cobra.Command, r *driving.IngestResult) bool {
	name := r.Path
	if name == "" {
		name = r.Filename
	}

	switch {
	case r.Err == nil:
		cmd.Printf("✓ %s: %d chunks (id %s)\n", name, r.Chunks, r.DocumentID)
		return true
	case errors.Is(r.Err, domain.ErrAlreadyExists):
		cmd.Printf("- %s: already stored (id %s)\n", name, r.DocumentID)
		return true
	default:
		cmd.Printf("✗ %s: %v\n", name, r.Err)
		return false
	}
}
