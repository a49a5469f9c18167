package llmfactory

import (
	"os"
	"slices"

	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llms/anthropic"
	"github.com/effective-security/cerebrum/pkg/llms/openai"
	"github.com/effective-security/x/configloader"
)

// Models of the providers created from the environment
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-5"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AgentModels specifies the mapping of agents to models.
	// key is the agent name, value is the list of preferred model names.
	// Use `default: <model_name>` as the default model for agents.
	AgentModels map[string][]string `json:"agent_models" yaml:"agent_models"`
}

// ProviderConfig describes a single LLM provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name"`
	// APIType specifies the type of API to use: OPENAI|ANTHROPIC
	APIType         string   `json:"api_type" yaml:"api_type"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	OrgID           string   `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
}

// FindModel returns the first of the preferred models served by the provider,
// or the provider's default model.
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if model == c.DefaultModel || slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Serves returns true if the provider serves the model
func (c *ProviderConfig) Serves(model string) bool {
	return model != "" && (model == c.DefaultModel || slices.Contains(c.AvailableModels, model))
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvidersFromEnv returns the providers with an API key in the environment.
// OPENAI is returned when no key is set at all, so the missing token is
// reported when the model is created.
func ProvidersFromEnv() []*ProviderConfig {
	hasOpenAI := os.Getenv(openai.EnvToken) != ""
	hasAnthropic := os.Getenv(anthropic.EnvToken) != ""

	var list []*ProviderConfig
	if hasOpenAI || !hasAnthropic {
		list = append(list, &ProviderConfig{
			Name:         "openai",
			APIType:      string(llms.ProviderOpenAI),
			DefaultModel: DefaultOpenAIModel,
		})
	}
	if hasAnthropic {
		list = append(list, &ProviderConfig{
			Name:         "anthropic",
			APIType:      string(llms.ProviderAnthropic),
			DefaultModel: DefaultAnthropicModel,
		})
	}
	return list
}
