package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/logger"
)

var (
	chatSession string
	chatPlain   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Opens the terminal chat. Questions share one conversation session, so
follow-ups keep their context.

When stdin or stdout is not a terminal, or with --plain, a line based prompt
is used instead: one question per line, "exit" to quit.

Controls:
  Enter    - Send question
  Tab      - Show the evidence of the last answer
  Esc      - Back to menu
  Ctrl+C   - Quit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "conversation session id (default \"tui\", or \"cli\" with --plain)")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "use the line based prompt")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if chatPlain || !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		session := chatSession
		if session == "" {
			session = DefaultSessionID
		}
		return runREPL(cmd, cmd.InOrStdin(), session)
	}
	return runTUI(cmd)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func runTUI(cmd *cobra.Command) error {
	rag, err := ragService()
	if err != nil {
		return err
	}
	docs, err := documentService()
	if err != nil {
		return err
	}

	ports := &tui.Ports{RAG: rag, Documents: docs, Conversations: services.Conversations}
	app, err := tui.NewApp(ports)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	app.WithContext(commandContext(cmd)).WithSession(chatSession).StartInChat()

	// The alternate screen owns stdout; keep log lines out of it.
	logger.SetOutput(io.Discard)
	defer logger.SetOutput(os.Stderr)

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runREPL answers one question per input line until EOF or "exit".
func runREPL(cmd *cobra.Command, in io.Reader, session string) error {
	rag, err := ragService()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	cmd.Printf("ragbot chat (session %s). Type \"exit\" to quit.\n", session)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("\n> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			return nil
		}

		answer, err := rag.Ask(ctx, session, question)
		if err != nil {
			logger.Warn("chat: question failed (%s): %v", domain.ErrorKind(err), err)
			cmd.Println(domain.UserMessage(err))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		cmd.Println()
		printAnswer(cmd, answer)
	}
}
