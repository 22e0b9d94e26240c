package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

var historySessions bool

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show conversation history",
	Long: `Prints the retained turns of a conversation session (default "cli").
Use --sessions to list the known sessions instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historySessions, "sessions", false, "list known sessions")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, err := conversationService()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	if historySessions {
		sessions, err := svc.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			cmd.Println("No sessions.")
			return nil
		}
		for _, s := range sessions {
			cmd.Println(s)
		}
		return nil
	}

	session := DefaultSessionID
	if len(args) == 1 {
		session = args[0]
	}

	turns, err := svc.History(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	if len(turns) == 0 {
		cmd.Printf("No conversation history for session %s.\n", session)
		return nil
	}

	for _, t := range turns {
		who := "You"
		if t.Role == domain.RoleAssistant {
			who = "Assistant"
		}
		cmd.Printf("[%s] %s:\n%s\n\n", t.Timestamp.Local().Format(timeLayout), who, t.Text)
	}

	stats, err := svc.Stats(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to get session stats: %w", err)
	}
	cmd.Printf("Session %s: %d turns total, %d retained, %d in the last 24h\n",
		stats.SessionID, stats.TotalTurns, stats.RetainedTurns, stats.RecentTurns)
	return nil
}
