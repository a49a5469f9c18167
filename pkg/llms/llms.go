package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// ProviderType is the API family of a model, as set by `api_type` in the config
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "OPENAI"
	ProviderAnthropic ProviderType = "ANTHROPIC"
)

// ParseProviderType returns the provider for an `api_type` value, ignoring case.
// OPEN_AI is accepted for OPENAI.
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPENAI", "OPEN_AI":
		return ProviderOpenAI, nil
	case "ANTHROPIC":
		return ProviderAnthropic, nil
	}
	return "", errors.Errorf("unsupported provider type: %q", s)
}

// Model generates chat completions.
type Model interface {
	GetProviderType() ProviderType
	// GenerateContent sends the messages to the model. Tools offered with
	// WithTools come back as ToolCalls of the choices, in the model's order.
	GenerateContent(ctx context.Context, messages []MessageContent, options ...CallOption) (*ContentResponse, error)
}

// Capability is a set of provider features
type Capability uint64

const (
	CapabilityText Capability = 1 << iota
	CapabilityFunctionCalling
	CapabilityMultiToolCalling
	CapabilitySystemPrompt
)

// chat providers supported by this module share the feature set
const chatCapabilities = CapabilityText | CapabilityFunctionCalling | CapabilityMultiToolCalling | CapabilitySystemPrompt

// Capabilities returns the features of the provider, zero for unknown providers
func (p ProviderType) Capabilities() Capability {
	switch p {
	case ProviderOpenAI, ProviderAnthropic:
		return chatCapabilities
	}
	return 0
}

// Supports returns true if the provider has all features of c
func (p ProviderType) Supports(c Capability) bool {
	return c != 0 && p.Capabilities()&c == c
}

// ModelName returns the model an adapter is configured with, or empty string
// when the Model does not report one.
func ModelName(m Model) string {
	if n, ok := m.(interface{ Model() string }); ok {
		return n.Model()
	}
	return ""
}
