package cli

import (
	"github.com/spf13/cobra"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	Long: `Runs the Telegram bot until interrupted. The token is read from
telegram.token or TELEGRAM_BOT_TOKEN.

Each chat has its own conversation session. With telegram.allow_uploads set,
PDFs sent to the bot are ingested.

Bot commands:
  /start, /help  - Usage
  /history       - Recent conversation
  /stats         - Corpus and session statistics`,
	RunE: runTelegram,
}

func init() {
	rootCmd.AddCommand(telegramCmd)
}

func runTelegram(cmd *cobra.Command, _ []string) error {
	bot, err := newTelegramBot()
	if err != nil {
		return err
	}
	cmd.Println("Telegram bot running. Press Ctrl+C to stop.")
	bot.Run(commandContext(cmd))
	return nil
}
