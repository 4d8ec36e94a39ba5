// Package config loads synsetran settings from defaults, a YAML file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/synsetran/internal/hint"
	"github.com/valpere/synsetran/internal/llm"
)

// EnvPrefix prefixes environment overrides: SYNSETRAN_TARGET_LANG,
// SYNSETRAN_BACKEND_MODEL and so on.
const EnvPrefix = "SYNSETRAN"

type Config struct {
	SourceLang    string         `mapstructure:"source_lang"`
	TargetLang    string         `mapstructure:"target_lang"`
	Backend       llm.Config     `mapstructure:"backend"`
	Pipeline      PipelineConfig `mapstructure:"pipeline"`
	Store         StoreConfig    `mapstructure:"store"`
	Hints         HintsConfig    `mapstructure:"hints"`
	LanguageCheck bool           `mapstructure:"language_check"`
	Log           LogConfig      `mapstructure:"log"`
}

type PipelineConfig struct {
	MaxRetries             int           `mapstructure:"max_retries"`
	RetryDelay             time.Duration `mapstructure:"retry_delay"`
	MaxExpansionIterations int           `mapstructure:"max_expansion_iterations"`
	ReviewDefinition       bool          `mapstructure:"review_definition"`
	Workers                int           `mapstructure:"workers"`
}

type StoreConfig struct {
	Path    string `mapstructure:"path"`
	NoCache bool   `mapstructure:"no_cache"`
	// MetadataCacheSize bounds the in-memory lexical metadata cache.
	MetadataCacheSize int `mapstructure:"metadata_cache_size"`
}

type HintsConfig struct {
	Google            bool `mapstructure:"google"`
	hint.GoogleConfig `mapstructure:",squash"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// apiKeyEnv names the conventional key variable of each hosted provider.
var apiKeyEnv = map[string]string{
	llm.ProviderAnthropic:  "ANTHROPIC_API_KEY",
	llm.ProviderOpenRouter: "OPENROUTER_API_KEY",
	llm.ProviderGemini:     "GEMINI_API_KEY",
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source_lang", "en")
	v.SetDefault("target_lang", "")

	v.SetDefault("backend.provider", llm.ProviderOllama)
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.temperature", 0.2)
	v.SetDefault("backend.max_tokens", 4096)
	v.SetDefault("backend.timeout", "120s")

	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.retry_delay", "0s")
	v.SetDefault("pipeline.max_expansion_iterations", 5)
	v.SetDefault("pipeline.review_definition", true)
	v.SetDefault("pipeline.workers", 1)

	v.SetDefault("store.path", "synsetran.db")
	v.SetDefault("store.no_cache", false)
	v.SetDefault("store.metadata_cache_size", 4096)

	v.SetDefault("hints.google", false)
	v.SetDefault("hints.credentials", "")
	v.SetDefault("hints.project_id", "")
	v.SetDefault("hints.endpoint", "")

	v.SetDefault("language_check", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration into a Config. Precedence, highest first: flags
// bound on v, SYNSETRAN_* environment variables, the config file, defaults.
// When path is empty ./synsetran.yaml and then config.yaml in the user config
// directory are tried; having neither is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path == "" {
		path = findConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Backend.Provider = strings.ToLower(strings.TrimSpace(cfg.Backend.Provider))
	if cfg.Backend.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.Backend.Provider]; ok {
			cfg.Backend.APIKey = os.Getenv(env)
		}
	}
	cfg.Backend.APIKey = os.ExpandEnv(cfg.Backend.APIKey)

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TargetLang) == "" {
		errs = append(errs, errors.New("target language is required"))
	}
	if c.Backend.Provider != "" && !slices.Contains(llm.Providers, c.Backend.Provider) {
		errs = append(errs, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, c.Backend.Provider))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries must be ≥ 0, got %d", c.Pipeline.MaxRetries))
	}
	if c.Pipeline.MaxExpansionIterations < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_expansion_iterations must be ≥ 1, got %d", c.Pipeline.MaxExpansionIterations))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be ≥ 1, got %d", c.Pipeline.Workers))
	}
	return errors.Join(errs...)
}

// findConfig returns ./synsetran.yaml or the user config file, whichever
// exists first.
func findConfig() string {
	for _, p := range []string{"synsetran.yaml", filepath.Join(UserConfigDir(), "config.yaml")} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// UserConfigDir returns the XDG config directory of synsetran.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "synsetran")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "synsetran")
	}
	return filepath.Join(home, ".config", "synsetran")
}
