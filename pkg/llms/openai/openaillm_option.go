package openai

import (
	"os"

	"github.com/effective-security/cerebrum/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
)

// Environment variables used when the matching option is not set
const (
	EnvToken        = "OPENAI_API_KEY" //nolint:gosec
	EnvModel        = "OPENAI_MODEL"
	EnvBaseURL      = "OPENAI_BASE_URL"
	EnvOrganization = "OPENAI_ORGANIZATION"
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	httpClient   openaiclient.Doer
}

// Option configures the OpenAI adapter
type Option func(*options)

// WithToken sets the API key, $OPENAI_API_KEY by default
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithModel sets the model used when the call does not specify one
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL points the adapter at a compatible API, https://api.openai.com/v1 by default
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithOrganization sets the OpenAI-Organization header
func WithOrganization(organization string) Option {
	return func(o *options) { o.organization = organization }
}

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(client openaiclient.Doer) Option {
	return func(o *options) { o.httpClient = client }
}

// fromEnv fills the values not set by options
func (o *options) fromEnv() {
	o.token = values.StringsCoalesce(o.token, os.Getenv(EnvToken))
	o.model = values.StringsCoalesce(o.model, os.Getenv(EnvModel))
	o.baseURL = values.StringsCoalesce(o.baseURL, os.Getenv(EnvBaseURL))
	o.organization = values.StringsCoalesce(o.organization, os.Getenv(EnvOrganization))
}
