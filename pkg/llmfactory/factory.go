package llmfactory

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llms/anthropic"
	"github.com/effective-security/cerebrum/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// ErrNoProviders is returned when the factory has no providers configured
var ErrNoProviders = errors.New("no providers configured")

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the default LLM model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns an LLM model by its provider type: OPENAI or ANTHROPIC
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if the model is not found, it will return the default model.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// AgentModel returns a model for the named agent.
	AgentModel(agentName string, preferredModels ...string) (llms.Model, error)
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	agentModels     map[string][]string
	// models cached by provider name and model name
	models map[string]llms.Model
	lock   sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:         cfg,
		models:      make(map[string]llms.Model),
		agentModels: make(map[string][]string),
	}

	for k, v := range cfg.AgentModels {
		f.agentModels[k] = slices.Clone(v)
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}
	if f.defaultProvider == nil && len(cfg.Providers) > 0 {
		f.defaultProvider = cfg.Providers[0]
	}

	return f
}

// CreateLLM creates a model for the provider, using the first preferred model it serves
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	model := cfg.FindModel(preferredModels...)
	provType, err := llms.ParseProviderType(cfg.APIType)
	if err != nil {
		return nil, err
	}

	switch provType {
	case llms.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(model)}
		if cfg.Token != "" {
			opts = append(opts, openai.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.OrgID != "" {
			opts = append(opts, openai.WithOrganization(cfg.OrgID))
		}
		return openai.New(opts...)
	default:
		opts := []anthropic.Option{anthropic.WithModel(model)}
		if cfg.Token != "" {
			opts = append(opts, anthropic.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	}
}

func (f *factory) get(cfg *ProviderConfig, models ...string) (llms.Model, error) {
	key := cfg.Name + "/" + cfg.FindModel(models...)
	if m, ok := f.models[key]; ok {
		return m, nil
	}

	m, err := NewLLM(cfg, models...)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"type", cfg.APIType,
		"provider", cfg.Name,
		"model", cfg.FindModel(models...))

	f.models[key] = m
	return m, nil
}

// DefaultModel returns the default model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if f.defaultProvider == nil {
		return nil, ErrNoProviders
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.get(f.defaultProvider)
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, cfg := range f.cfg.Providers {
		if strings.EqualFold(cfg.APIType, providerType) {
			return f.get(cfg)
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	for _, modelName := range modelNames {
		for _, cfg := range f.cfg.Providers {
			if !cfg.Serves(modelName) {
				continue
			}
			model, err := f.get(cfg, modelName)
			if err != nil {
				logger.KV(xlog.ERROR,
					"reason", "NewLLM",
					"type", cfg.APIType,
					"provider", cfg.Name,
					"model", modelName,
					"err", err.Error(),
				)
				continue
			}
			f.lock.Unlock()
			return model, nil
		}
	}
	f.lock.Unlock()

	return f.DefaultModel()
}

// AgentModel returns a model for the agent, using agent_models mapping first
func (f *factory) AgentModel(agentName string, preferredModels ...string) (llms.Model, error) {
	if modelNames, ok := f.agentModels[agentName]; ok {
		return f.ModelByName(modelNames...)
	}
	if modelNames, ok := f.agentModels["default"]; ok {
		return f.ModelByName(append(slices.Clone(preferredModels), modelNames...)...)
	}
	return f.ModelByName(preferredModels...)
}
