// Package settings loads and stores user configuration from
// ~/.gtllm/settings.toml. The OPENROUTER_API_KEY environment variable always
// wins over the stored key.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	dirName  = ".gtllm"
	fileName = "settings.toml"
	dirPerm  = 0o700
	filePerm = 0o600

	// EnvAPIKey is the environment variable overriding the stored API key.
	EnvAPIKey = "OPENROUTER_API_KEY"
)

// Convergence policy names accepted in ConvergencePolicy.
const (
	ConvergenceExact = "exact"
	ConvergenceJudge = "judge"
)

// Settings is the persisted user configuration.
type Settings struct {
	// APIKey authenticates against OpenRouter.
	APIKey string `toml:"openrouter_api_key"`
	// Theme is the presentation layer's color theme.
	Theme string `toml:"theme"`
	// RoundCap bounds collaborative refinement rounds.
	RoundCap int `toml:"round_cap"`
	// PvPRounds is the number of challenger exchanges before judgment.
	PvPRounds int `toml:"pvp_rounds"`
	// MaxRetries bounds gateway re-attempts per invocation.
	MaxRetries int `toml:"max_retries"`
	// InvokeTimeoutSecs caps each invocation in seconds.
	InvokeTimeoutSecs int `toml:"invoke_timeout_secs"`
	// ConvergencePolicy selects how collaborative agreement is decided:
	// "exact" or "judge".
	ConvergencePolicy string `toml:"convergence_policy"`
	// DefaultModels are pre-selected model identifiers for new conversations.
	DefaultModels []string `toml:"default_models"`
}

// Default returns the baseline settings.
func Default() Settings {
	return Settings{
		Theme:             "dracula",
		RoundCap:          8,
		PvPRounds:         1,
		MaxRetries:        2,
		InvokeTimeoutSecs: 300,
		ConvergencePolicy: ConvergenceExact,
	}
}

// Dir returns the configuration directory (~/.gtllm).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Path returns the settings file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the settings file, falling back to defaults when it does not
// exist, then applies environment overrides.
func Load() (Settings, error) {
	path, err := Path()
	if err != nil {
		return Settings{}, err
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from an explicit path. Missing files yield the
// defaults, not an error.
func LoadFrom(path string) (Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, &s); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		s.APIKey = key
	}
	return s, nil
}

// Save writes the settings to the default location with owner-only
// permissions; the file holds an API key.
func (s Settings) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return s.SaveTo(path)
}

// SaveTo writes the settings to an explicit path.
func (s Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return nil
}
