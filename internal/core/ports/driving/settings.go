package driving

import "github.com/custodia-labs/ragbot/internal/core/domain"

// SettingsService assembles and persists application settings.
type SettingsService interface {
	// Get returns the settings from the config file, overlaid with the
	// environment. It does not validate.
	Get() (*domain.AppSettings, error)

	// Load returns validated settings; errors wrap domain.ErrConfiguration.
	Load() (*domain.AppSettings, error)

	// Set stores a single config key after checking it is known.
	Set(key, value string) error

	// Values lists the effective value of every known key, secrets masked.
	Values() (map[string]string, error)

	// Path returns the config file location.
	Path() string

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ValidateProviders pings the configured embedding and LLM providers.
	ValidateProviders() error
}
