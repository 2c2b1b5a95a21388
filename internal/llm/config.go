package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config selects and configures the oracle backend.
type Config struct {
	Provider string

	Anthropic  VendorConfig
	OpenAI     VendorConfig
	Gemini     VendorConfig
	OpenRouter VendorConfig

	Retry RetryConfig

	// Timeout bounds one Generate call, retries included.
	Timeout time.Duration
}

// VendorConfig holds one vendor's credentials. Model may be a friendly
// alias ("claude-haiku", "gemini-flash") or a full model ID. BaseURL is
// honored by the OpenAI-compatible vendors only.
type VendorConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig uses small, cheap models: tutor turns are short and
// latency matters more than depth.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  VendorConfig{Model: "claude-haiku"},
		OpenAI:     VendorConfig{Model: "gpt-4o-mini"},
		Gemini:     VendorConfig{Model: "gemini-flash"},
		OpenRouter: VendorConfig{Model: "google/gemini-2.0-flash-exp"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 30 * time.Second,
	}
}

// vendor returns a pointer to the named vendor's section, or nil.
func (c *Config) vendor(name string) *VendorConfig {
	switch name {
	case ProviderAnthropic:
		return &c.Anthropic
	case ProviderOpenAI:
		return &c.OpenAI
	case ProviderGemini:
		return &c.Gemini
	case ProviderOpenRouter:
		return &c.OpenRouter
	}
	return nil
}

// discoveryOrder is the priority in which DiscoverConfig probes the
// vendors' conventional key variables.
var discoveryOrder = []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter}

// DiscoverConfig fills base from the first vendor whose conventional key
// variable (GEMINI_API_KEY, OPENAI_API_KEY, ...) is set. It returns
// (base, false) when none is.
func DiscoverConfig(base Config) (Config, bool) {
	for _, name := range discoveryOrder {
		key := os.Getenv(strings.ToUpper(name) + "_API_KEY")
		if key == "" {
			continue
		}
		cfg := base
		cfg.Provider = name
		cfg.vendor(name).APIKey = key
		return cfg, true
	}
	return base, false
}

// Validate checks that the selected provider is known and has a key.
func (c Config) Validate() error {
	if c.Provider == ProviderMock {
		return nil
	}
	v := c.vendor(c.Provider)
	if v == nil {
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if v.APIKey == "" {
		return fmt.Errorf("MICROTUTOR_LLM_%s_API_KEY is required for the %s provider", strings.ToUpper(c.Provider), c.Provider)
	}
	return nil
}
