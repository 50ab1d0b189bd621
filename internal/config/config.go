package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for FinBot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Providers ProvidersConfig `json:"providers"`
	SMS       SMSConfig       `json:"sms"`
	Channels  ChannelsConfig  `json:"channels"`
	Watchlist WatchlistConfig `json:"watchlist"`
	Canned    CannedConfig    `json:"canned"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

// ProvidersConfig wires the fact-retrieval fallback chain and the LLM
// connector. QuoteChain is the ordered fallback list; the first
// structurally-valid response wins.
type ProvidersConfig struct {
	QuoteChain          []string          `json:"quoteChain"`
	QuoteTimeoutSeconds int               `json:"quoteTimeoutSeconds"`
	RequestsPerSecond   float64           `json:"requestsPerSecond"` // per-provider outbound cap
	FMP                 APIProviderConfig `json:"fmp"`
	AlphaVantage        APIProviderConfig `json:"alphaVantage"`
	TwelveData          APIProviderConfig `json:"twelveData"`
	Perplexity          PerplexityConfig  `json:"perplexity"`
}

type APIProviderConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

// PerplexityConfig configures the search/LLM connector. The same endpoint
// serves both the citation-bearing search calls and the plain formatting
// calls; only the prompts differ.
type PerplexityConfig struct {
	APIBase        string  `json:"apiBase"`
	APIKey         string  `json:"apiKey,omitempty"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

// SMSConfig carries the output-channel length budgets.
// TargetChars is the soft budget given to the model (2 concatenated UCS-2
// segments); MaxChars is the hard ceiling enforced after synthesis
// (10 GSM-7 segments, the Twilio concatenation limit).
type SMSConfig struct {
	TargetChars   int    `json:"targetChars"`
	MaxChars      int    `json:"maxChars"`
	DefaultSource string `json:"defaultSource"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	CLI      CLIConfig      `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type WatchlistConfig struct {
	DBPath string `json:"dbPath"`
}

// CannedConfig points at an optional directory of YAML files overriding the
// built-in canned replies (greeting, help, goodbye).
type CannedConfig struct {
	Dir string `json:"dir,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Port     int    `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.finbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finbot"
	}
	return filepath.Join(home, ".finbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Watchlist.DBPath = ExpandPath(cfg.Watchlist.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Canned.Dir = ExpandPath(cfg.Canned.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if len(cfg.Providers.QuoteChain) == 0 {
		errs = append(errs, "providers.quoteChain must list at least one provider")
	}
	for _, name := range cfg.Providers.QuoteChain {
		switch name {
		case "fmp", "alphavantage", "twelvedata":
			// known
		default:
			errs = append(errs, fmt.Sprintf("providers.quoteChain references unknown provider: %s", name))
		}
	}
	if cfg.Providers.QuoteTimeoutSeconds < 1 || cfg.Providers.QuoteTimeoutSeconds > 60 {
		errs = append(errs, "providers.quoteTimeoutSeconds must be between 1 and 60")
	}
	if cfg.Providers.RequestsPerSecond <= 0 {
		errs = append(errs, "providers.requestsPerSecond must be > 0")
	}
	if cfg.Providers.Perplexity.TimeoutSeconds < 1 || cfg.Providers.Perplexity.TimeoutSeconds > 120 {
		errs = append(errs, "providers.perplexity.timeoutSeconds must be between 1 and 120")
	}
	if cfg.Providers.Perplexity.APIBase == "" {
		errs = append(errs, "providers.perplexity.apiBase is required")
	}

	if cfg.SMS.TargetChars < 70 {
		errs = append(errs, "sms.targetChars must be >= 70 (one UCS-2 segment)")
	}
	if cfg.SMS.MaxChars < cfg.SMS.TargetChars {
		errs = append(errs, "sms.maxChars must be >= sms.targetChars")
	}
	if cfg.SMS.DefaultSource == "" {
		errs = append(errs, "sms.defaultSource must not be empty")
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
