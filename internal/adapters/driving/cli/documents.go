package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage ingested documents",
	Long:    `List, inspect and delete ingested documents.`,
	RunE:    runDocumentsList,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE:  runDocumentsList,
}

var documentsGetCmd = &cobra.Command{
	Use:   "get <doc-id>",
	Short: "Show one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsGet,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <doc-id|filename>",
	Short: "Delete a document and its chunks",
	Long: `Deletes a document and every chunk derived from it. The reference is
matched as a document id first, then as a filename.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentsDelete,
}

var documentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the corpus",
	RunE:  runDocumentsStats,
}

func init() {
	documentsCmd.PersistentFlags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsGetCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	documentsCmd.AddCommand(documentsStatsCmd)
	rootCmd.AddCommand(documentsCmd)
}

// documentOutput is the JSON form of a document.
type documentOutput struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	TextLength int       `json:"text_length"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toDocumentOutput(d *domain.Document) documentOutput {
	return documentOutput{
		ID:         d.ID,
		Filename:   d.Filename,
		Status:     string(d.Status),
		Pages:      d.PageCount,
		TextLength: d.TextLength,
		Chunks:     d.ChunkCount,
		Error:      d.Error,
		UploadedAt: d.UploadedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	docs, err := svc.List(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentsJSON {
		out := make([]documentOutput, 0, len(docs))
		for i := range docs {
			out = append(out, toDocumentOutput(&docs[i]))
		}
		return printJSON(cmd, out)
	}

	if len(docs) == 0 {
		cmd.Println("No documents ingested yet.")
		return nil
	}

	for i := range docs {
		d := &docs[i]
		cmd.Printf("  %s  %-8s %4d chunks  %s\n", d.ID, d.Status, d.ChunkCount, d.Filename)
		if d.Error != "" {
			cmd.Printf("      error: %s\n", d.Error)
		}
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentsGet(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	doc, err := svc.Get(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if documentsJSON {
		return printJSON(cmd, toDocumentOutput(doc))
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Filename:   %s\n", doc.Filename)
	cmd.Printf("  Status:     %s\n", doc.Status)
	cmd.Printf("  Pages:      %d\n", doc.PageCount)
	cmd.Printf("  Characters: %d\n", doc.TextLength)
	cmd.Printf("  Chunks:     %d\n", doc.ChunkCount)
	cmd.Printf("  Uploaded:   %s\n", doc.UploadedAt.Local().Format(timeLayout))
	cmd.Printf("  Updated:    %s\n", doc.UpdatedAt.Local().Format(timeLayout))
	if doc.Error != "" {
		cmd.Printf("  Error:      %s\n", doc.Error)
	}
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	doc, err := svc.Delete(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted %s (%s, %d chunks)\n", doc.Filename, doc.ID, doc.ChunkCount)
	return nil
}

func runDocumentsStats(cmd *cobra.Command, _ []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	stats, err := svc.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if documentsJSON {
		return printJSON(cmd, stats)
	}

	printCorpusStats(cmd, stats)
	return nil
}

func printCorpusStats(cmd *cobra.Command, stats *domain.CorpusStats) {
	cmd.Printf("Documents: %d\n", stats.Documents)
	cmd.Printf("Chunks:    %d\n", stats.Chunks)

	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, string(s))
	}
	slices.Sort(statuses)
	for _, s := range statuses {
		cmd.Printf("  %-9s %d\n", s+":", stats.ByStatus[domain.DocumentStatus(s)])
	}

	if !stats.LastIngestedAt.IsZero() {
		cmd.Printf("Last ingested: %s\n", stats.LastIngestedAt.Local().Format(timeLayout))
	}
}
