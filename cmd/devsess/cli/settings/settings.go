// Package settings provides configuration loading for devsess.
// This package is separate from the command layer so that store and engine
// can import it without creating an import cycle.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"devsess.io/cli/cmd/devsess/cli/paths"
)

// DefaultBackendName is the persistence backend used when none is configured.
const DefaultBackendName = "json"

const (
	// SettingsFileName is the settings file under the state directory.
	SettingsFileName = "settings.json"
	// LocalSettingsFileName is the uncommitted local override file.
	LocalSettingsFileName = "settings.local.json"
)

// Settings represents the devsess settings file.
type Settings struct {
	// Backend selects the persistence backend: "json", "sqlite", or
	// "postgres". Defaults to "json".
	Backend string `json:"backend"`

	// PostgresURL is the Postgres connection string for the postgres backend.
	// The DEVSESS_POSTGRES_URL environment variable overrides it.
	PostgresURL string `json:"postgres_url,omitempty"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Can be overridden by the DEVSESS_LOG_LEVEL environment variable.
	// Defaults to "info".
	LogLevel string `json:"log_level,omitempty"`

	// DefaultTargetBranch is the merge target for new proposals when a
	// repository has no preference. Empty means the repository default.
	DefaultTargetBranch string `json:"default_target_branch,omitempty"`

	// BackendOptions contains backend-specific configuration.
	BackendOptions map[string]any `json:"backend_options,omitempty"`
}

// Load reads settings from <stateDir>/settings.json, then applies overrides
// from <stateDir>/settings.local.json if it exists. Returns default settings
// if neither file exists.
func Load() (*Settings, error) {
	base := paths.BaseDir()

	settings, err := loadFromFile(filepath.Join(base, SettingsFileName))
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(filepath.Join(base, LocalSettingsFileName)) //nolint:gosec // path is derived from the state dir
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else {
		if err := mergeJSON(settings, localData); err != nil {
			return nil, fmt.Errorf("merging local settings: %w", err)
		}
	}

	applyDefaults(settings)

	return settings, nil
}

// loadFromFile loads settings from a specific file path.
// Returns default settings if the file doesn't exist.
func loadFromFile(filePath string) (*Settings, error) {
	settings := &Settings{
		Backend: DefaultBackendName,
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is from caller
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(settings)

	return settings, nil
}

// mergeJSON merges JSON data into existing settings.
// Only non-zero values from the JSON override existing settings.
func mergeJSON(settings *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if backendRaw, ok := raw["backend"]; ok {
		var b string
		if err := json.Unmarshal(backendRaw, &b); err != nil {
			return fmt.Errorf("parsing backend field: %w", err)
		}
		if b != "" {
			settings.Backend = b
		}
	}

	if urlRaw, ok := raw["postgres_url"]; ok {
		var u string
		if err := json.Unmarshal(urlRaw, &u); err != nil {
			return fmt.Errorf("parsing postgres_url field: %w", err)
		}
		if u != "" {
			settings.PostgresURL = u
		}
	}

	if logLevelRaw, ok := raw["log_level"]; ok {
		var ll string
		if err := json.Unmarshal(logLevelRaw, &ll); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if ll != "" {
			settings.LogLevel = ll
		}
	}

	if branchRaw, ok := raw["default_target_branch"]; ok {
		var b string
		if err := json.Unmarshal(branchRaw, &b); err != nil {
			return fmt.Errorf("parsing default_target_branch field: %w", err)
		}
		if b != "" {
			settings.DefaultTargetBranch = b
		}
	}

	if optionsRaw, ok := raw["backend_options"]; ok {
		var opts map[string]any
		if err := json.Unmarshal(optionsRaw, &opts); err != nil {
			return fmt.Errorf("parsing backend_options field: %w", err)
		}
		if settings.BackendOptions == nil {
			settings.BackendOptions = opts
		} else {
			for k, v := range opts {
				settings.BackendOptions[k] = v
			}
		}
	}

	return nil
}

func applyDefaults(settings *Settings) {
	if settings.Backend == "" {
		settings.Backend = DefaultBackendName
	}
}

// ResolvePostgresURL returns the Postgres connection string, preferring the
// environment over the settings file.
func (s *Settings) ResolvePostgresURL(envVar string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return s.PostgresURL
}
