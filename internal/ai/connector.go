package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/jeffepok/botnet/internal/retry"
	"github.com/jeffepok/botnet/pkg/models"
)

// ProviderConfig holds the credentials and limits of one remote provider
type ProviderConfig struct {
	APIKey            string        `koanf:"api_key" json:"-"`
	BaseURL           string        `koanf:"base_url" json:"base_url,omitempty"`
	Model             string        `koanf:"model" json:"model"` // default when the agent names none
	Timeout           time.Duration `koanf:"timeout" json:"timeout"`
	RequestsPerMinute float64       `koanf:"requests_per_minute" json:"requests_per_minute"`
	Burst             int           `koanf:"burst" json:"burst"`
}

// Config is everything the adapter factory needs
type Config struct {
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
	Gemini    ProviderConfig `koanf:"gemini"`
	Retry     retry.Config   `koanf:"retry"`
}

// DefaultConfig returns provider defaults without credentials
func DefaultConfig() Config {
	return Config{
		OpenAI: ProviderConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Model:             "gpt-4",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
			Burst:             5,
		},
		Anthropic: ProviderConfig{
			Model:             "claude-3-sonnet-20240229",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 50,
			Burst:             5,
		},
		Gemini: ProviderConfig{
			Model:             "gemini-2.0-flash-exp",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
			Burst:             5,
		},
		Retry: retry.ProviderConfig(),
	}
}

// Settings returns the configuration of a remote provider
func (c Config) Settings(provider models.ProviderType) (ProviderConfig, bool) {
	switch provider {
	case models.ProviderOpenAI:
		return c.OpenAI, true
	case models.ProviderAnthropic:
		return c.Anthropic, true
	case models.ProviderGemini:
		return c.Gemini, true
	default:
		return ProviderConfig{}, false
	}
}

// ModelConstructor builds the langchaingo client for a remote provider
type ModelConstructor func(ctx context.Context, provider models.ProviderType, cfg ProviderConfig, model string) (llms.Model, error)

// NewModel is the default ModelConstructor
func NewModel(ctx context.Context, provider models.ProviderType, cfg ProviderConfig, model string) (llms.Model, error) {
	log.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Msg("Creating provider client")

	switch provider {
	case models.ProviderOpenAI:
		return createOpenAIModel(cfg, model)
	case models.ProviderAnthropic:
		return createAnthropicModel(cfg, model)
	case models.ProviderGemini:
		return createGeminiModel(ctx, cfg, model)
	default:
		return nil, fmt.Errorf("provider %q has no remote client", provider)
	}
}

func createOpenAIModel(cfg ProviderConfig, model string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.APIKey),
	}
	// OpenAI-compatible gateways such as OpenRouter
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func createAnthropicModel(cfg ProviderConfig, model string) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}

func createGeminiModel(ctx context.Context, cfg ProviderConfig, model string) (llms.Model, error) {
	return googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
}

// ErrorMapper returns the langchaingo mapper that turns a provider's raw
// errors into typed *llms.Error values
func ErrorMapper(provider models.ProviderType) func(error) error {
	switch provider {
	case models.ProviderOpenAI:
		return openai.MapError
	case models.ProviderAnthropic:
		return anthropic.MapError
	case models.ProviderGemini:
		return googleai.MapError
	default:
		return nil
	}
}

var placeholderKeys = map[string]bool{
	"":            true,
	"changeme":    true,
	"change-me":   true,
	"placeholder": true,
	"none":        true,
	"null":        true,
	"todo":        true,
	"sk-...":      true,
	"sk-xxx":      true,
}

// IsPlaceholderKey reports whether an API key is missing or obviously a
// template value such as "your-openai-key"
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if placeholderKeys[k] {
		return true
	}
	switch {
	case strings.HasPrefix(k, "your-"), strings.HasPrefix(k, "your_"):
		return true
	case strings.HasPrefix(k, "xxx"), strings.HasPrefix(k, "<"):
		return true
	case strings.Contains(k, "placeholder"), strings.Contains(k, "..."):
		return true
	}
	return false
}
