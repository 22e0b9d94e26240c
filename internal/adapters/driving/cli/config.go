package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	coreservices "github.com/custodia-labs/ragbot/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change ragbot configuration.

Settings live in config.toml inside the config directory. Environment
variables (RAGBOT_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, TELEGRAM_BOT_TOKEN,
DATABASE_URL) override the file.`,
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings (secrets masked)",
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a configuration key",
	Long: `Sets one key in config.toml. The value is checked before it is written.

Secret keys (API keys, tokens, database URLs) are read without echo when the
value is omitted.

Examples:
  ragbot config set llm.provider anthropic
  ragbot config set llm.api_key
  ragbot config set chunking.size 800`,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE:        runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file location",
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := settingsService()
		if err != nil {
			return err
		}
		cmd.Println(svc.Path())
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:         "check",
	Short:       "Validate settings and ping providers",
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE:        runConfigCheck,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	svc, err := settingsService()
	if err != nil {
		return err
	}
	values, err := svc.Values()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	keys := make([]string, 0, len(values))
	width := 0
	for k := range values {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	slices.Sort(keys)

	section := ""
	for _, k := range keys {
		if s, _, _ := strings.Cut(k, "."); s != section {
			if section != "" {
				cmd.Println()
			}
			section = s
			cmd.Printf("[%s]\n", section)
		}
		v := values[k]
		if v == "" {
			v = "(not set)"
		}
		cmd.Printf("  %-*s  %s\n", width, k, v)
	}
	cmd.Printf("\nConfig file: %s\n", svc.Path())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	svc, err := settingsService()
	if err != nil {
		return err
	}
	key := args[0]

	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case coreservices.IsSecretKey(key):
		cmd.Printf("%s: ", key)
		value = readPassword(cmd.InOrStdin())
		cmd.Println()
	default:
		cmd.Printf("%s: ", key)
		value = readLine(bufio.NewReader(cmd.InOrStdin()))
	}

	if err := svc.Set(key, value); err != nil {
		return err
	}
	if coreservices.IsSecretKey(key) {
		cmd.Printf("Set %s\n", key)
	} else {
		cmd.Printf("Set %s = %s\n", key, value)
	}
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	svc, err := settingsService()
	if err != nil {
		return err
	}

	cmd.Print("Settings... ")
	if _, err := svc.Load(); err != nil {
		cmd.Println("FAILED")
		return err
	}
	cmd.Println("OK")

	cmd.Print("Providers... ")
	if err := svc.ValidateProviders(); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("provider check failed: %w", err)
	}
	cmd.Println("OK")
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readPassword reads a line without echo when in is a terminal.
func readPassword(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(bufio.NewReader(in))
}
