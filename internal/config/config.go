// Package config handles loading and validating mealscan configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Supported provider identifiers. The "provider" key in config.yaml must be
// one of these two — anything else falls back to OpenAI at resolve time.
const (
	ProviderOpenAI     = "openai"
	ProviderPerplexity = "perplexity"
)

// Placeholder API keys used when no real credential is configured. These are
// deliberately invalid: a request sent with one of them gets a 401 from the
// provider, which the error classifier turns into AUTH_ERROR. Failing at the
// HTTP layer instead of at load time means the service still starts (and its
// health endpoint works) without credentials.
const (
	openAIKeyPlaceholder     = "YOUR_OPENAI_API_KEY_HERE"
	perplexityKeyPlaceholder = "YOUR_PERPLEXITY_API_KEY_HERE"
)

// Default endpoints and models per provider, applied when config.yaml leaves
// them unset.
const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAIModel       = "gpt-4o-mini"
	perplexityBaseURL = "https://api.perplexity.ai"
	perplexityModel   = "sonar"
)

// Config is the top-level configuration for the mealscan service.
type Config struct {
	Server    ServerConfig                `koanf:"server"`
	Provider  string                      `koanf:"provider"` // active provider: "openai" or "perplexity"
	Debug     bool                        `koanf:"debug"`    // log raw upstream errors for diagnostics
	Analysis  AnalysisConfig              `koanf:"analysis"`
	Providers map[string]ProviderSettings `koanf:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AnalysisConfig holds knobs for the analysis pipeline.
type AnalysisConfig struct {
	// DebounceDelay is the quiet window for the preview endpoint — rapid
	// calls within this window collapse into one upstream request.
	DebounceDelay time.Duration `koanf:"debounce_delay"`

	// RetryBudget caps the total time the server spends retrying a
	// retryable failure before giving up and returning the error.
	RetryBudget time.Duration `koanf:"retry_budget"`
}

// ProviderSettings holds the configured settings for a single LLM provider.
type ProviderSettings struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// ProviderConfig is a fully resolved provider selection: which provider is
// active plus the credential, model, and endpoint to use for one analysis
// call. All fields are always non-empty — missing values are filled with
// branch defaults (and a placeholder key). Value type on purpose: each call
// gets its own immutable copy.
type ProviderConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "MEALSCAN_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   MEALSCAN_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("MEALSCAN_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "MEALSCAN_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys. koanf doesn't
	// do this automatically, so we handle it ourselves with os.Getenv.
	// A ${VAR} whose variable is unset expands to "" — ResolveProvider
	// then substitutes the invalid placeholder key.
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1] // strip ${ and }
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p // write back into the map
		}
	}

	return &cfg, nil
}

// ResolveProvider returns the active provider's fully resolved settings.
// It is called fresh on every analysis — nothing is cached — so a config
// override takes effect on the very next call.
//
// There is no error path here. An unknown provider name falls back to
// OpenAI, and a missing API key becomes an obviously-invalid placeholder.
// The eventual 401 from the upstream API is classified as AUTH_ERROR,
// which is a clearer signal to the caller than refusing to start.
func (c *Config) ResolveProvider() ProviderConfig {
	name := c.Provider
	if name != ProviderPerplexity {
		name = ProviderOpenAI
	}

	settings := c.Providers[name] // zero value if the branch isn't configured

	pc := ProviderConfig{
		Provider: name,
		APIKey:   settings.APIKey,
		Model:    settings.Model,
		BaseURL:  settings.BaseURL,
	}

	switch name {
	case ProviderPerplexity:
		if pc.APIKey == "" {
			pc.APIKey = perplexityKeyPlaceholder
		}
		if pc.Model == "" {
			pc.Model = perplexityModel
		}
		if pc.BaseURL == "" {
			pc.BaseURL = perplexityBaseURL
		}
	default:
		if pc.APIKey == "" {
			pc.APIKey = openAIKeyPlaceholder
		}
		if pc.Model == "" {
			pc.Model = openAIModel
		}
		if pc.BaseURL == "" {
			pc.BaseURL = openAIBaseURL
		}
	}

	return pc
}
