package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var diagnoseJSON bool

var diagnoseCmd = &cobra.Command{
	Use:     "diagnose",
	Aliases: []string{"doctor"},
	Short:   "Check the store and the AI providers",
	Long: `Probes the document store, the embedding provider and the LLM, and
prints corpus statistics. Exits non-zero when a dependency is unreachable.`,
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "output JSON")
	rootCmd.AddCommand(diagnoseCmd)
}

type checkOutput struct {
	Name      string `json:"name"`
	Detail    string `json:"detail,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	svc, err := statusService()
	if err != nil {
		return err
	}
	d := svc.Diagnose(commandContext(cmd))

	if diagnoseJSON {
		checks := make([]checkOutput, 0, len(d.Checks))
		for _, c := range d.Checks {
			checks = append(checks, checkOutput{
				Name:      c.Name,
				Detail:    c.Detail,
				OK:        c.OK,
				Error:     c.Error,
				LatencyMS: c.Latency.Milliseconds(),
			})
		}
		if err := printJSON(cmd, map[string]any{
			"healthy": d.Healthy,
			"checks":  checks,
		}); err != nil {
			return err
		}
	} else {
		for _, c := range d.Checks {
			mark := "✓"
			if !c.OK {
				mark = "✗"
			}
			cmd.Printf("%s %-10s %-30s %s\n", mark, c.Name, c.Detail, c.Latency.Round(time.Millisecond))
			if !c.OK {
				cmd.Printf("    %s\n", c.Error)
			}
		}
		if d.Corpus != nil {
			cmd.Println()
			printCorpusStats(cmd, d.Corpus)
		}
	}

	if !d.Healthy {
		return errors.New("one or more checks failed")
	}
	return nil
}
