// Package cli implements the ragbot command line.
// It is a driving adapter: commands only talk to the core through driving ports.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Command annotations controlling bootstrap.
const (
	annotationBootstrap = "bootstrap"
	bootstrapNone       = "none"
	bootstrapSettings   = "settings"
)

var (
	version   = "dev"
	verbose   bool
	configDir string
)

// Services are the driving ports the commands use. Fields may be nil when
// only settings were bootstrapped.
type Services struct {
	Settings      driving.SettingsService
	RAG           driving.RAGService
	Ingest        driving.IngestService
	Documents     driving.DocumentService
	Conversations driving.ConversationService
	Status        driving.StatusService

	// AppSettings are the validated settings the services were built from.
	AppSettings *domain.AppSettings

	// Close releases stores and connections.
	Close func() error
}

// Bootstrap builds services for a command. When full is false only the
// settings service is needed.
type Bootstrap func(ctx context.Context, configDir string, full bool) (*Services, error)

var (
	services  *Services
	bootstrap Bootstrap
)

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "Chat with your PDF documents",
	Long: `ragbot answers questions about your PDF documents.

Ingest PDFs, then ask questions from the terminal, the interactive chat,
the HTTP API, Telegram or any MCP-compatible assistant. Answers are grounded
on the most relevant passages and cite the files they came from.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.ragbot)")
}

// SetVersion sets the version reported by `ragbot version`.
func SetVersion(v string) {
	version = v
}

// SetServices injects ready-made services and disables bootstrapping.
func SetServices(s *Services) {
	services = s
}

// SetBootstrap sets the function that builds services on demand.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	mode := cmd.Annotations[annotationBootstrap]
	if mode == bootstrapNone || bootstrap == nil {
		return nil
	}
	full := mode != bootstrapSettings
	if services != nil && (!full || services.RAG != nil) {
		return nil
	}

	s, err := bootstrap(commandContext(cmd), configDir, full)
	if err != nil {
		return err
	}
	services = s
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if services == nil || services.Close == nil {
		return nil
	}
	err := services.Close()
	services.Close = nil
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Accessors returning an error when the service is not wired.

func ragService() (driving.RAGService, error) {
	if services == nil || services.RAG == nil {
		return nil, errors.New("rag service not configured")
	}
	return services.RAG, nil
}

func ingestService() (driving.IngestService, error) {
	if services == nil || services.Ingest == nil {
		return nil, errors.New("ingest service not configured")
	}
	return services.Ingest, nil
}

func documentService() (driving.DocumentService, error) {
	if services == nil || services.Documents == nil {
		return nil, errors.New("document service not configured")
	}
	return services.Documents, nil
}

func conversationService() (driving.ConversationService, error) {
	if services == nil || services.Conversations == nil {
		return nil, errors.New("conversation service not configured")
	}
	return services.Conversations, nil
}

func statusService() (driving.StatusService, error) {
	if services == nil || services.Status == nil {
		return nil, errors.New("status service not configured")
	}
	return services.Status, nil
}

func settingsService() (driving.SettingsService, error) {
	if services == nil || services.Settings == nil {
		return nil, errors.New("settings service not configured")
	}
	return services.Settings, nil
}

// appSettings returns the running settings, falling back to defaults.
func appSettings() domain.AppSettings {
	if services != nil && services.AppSettings != nil {
		return *services.AppSettings
	}
	if services != nil && services.Settings != nil {
		return services.Settings.GetDefaults()
	}
	return domain.DefaultAppSettings()
}
