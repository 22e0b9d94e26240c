package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// DefaultSessionID is the conversation session of the ask and chat commands.
const DefaultSessionID = "cli"

var (
	askSession string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the ingested documents",
	Long: `Retrieves the passages most relevant to the question and asks the
language model to answer from them. The question and answer are added to
the session history, so follow-up questions keep their context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", DefaultSessionID, "conversation session id")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

// askOutput is the JSON form of an answer.
type askOutput struct {
	Answer    string           `json:"answer"`
	Citations []string         `json:"citations"`
	Evidence  []evidenceOutput `json:"evidence"`
}

type evidenceOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	rag, err := ragService()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	answer, err := rag.Ask(commandContext(cmd), askSession, question)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", domain.UserMessage(err), domain.ErrorKind(err), err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	printAnswer(cmd, answer)
	return nil
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	out := askOutput{
		Answer:    answer.Text,
		Citations: answer.Citations,
		Evidence:  make([]evidenceOutput, 0, len(answer.Evidence)),
	}
	if out.Citations == nil {
		out.Citations = []string{}
	}
	for _, e := range answer.Evidence {
		out.Evidence = append(out.Evidence, evidenceOutput{
			DocumentID: e.Chunk.DocumentID,
			Filename:   e.Filename,
			Ordinal:    e.Chunk.Ordinal,
			Section:    e.Chunk.Section,
			Score:      e.Score,
		})
	}

	return printJSON(cmd, out)
}

func printAnswer(cmd *cobra.Command, answer *domain.Answer) {
	cmd.Println(answer.Text)
	if len(answer.Citations) > 0 {
		cmd.Printf("\nSources: %s\n", strings.Join(answer.Citations, ", "))
	}
}
