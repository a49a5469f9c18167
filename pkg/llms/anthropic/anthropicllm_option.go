package anthropic

import (
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/effective-security/x/values"
)

// EnvToken is used when WithToken is not set
const EnvToken = "ANTHROPIC_API_KEY" //nolint:gosec

const (
	defaultMaxRetries     = 2
	defaultRequestTimeout = 5 * time.Minute
)

type options struct {
	token      string
	model      string
	baseURL    string
	httpClient option.HTTPClient
}

// Option configures the Anthropic adapter
type Option func(*options)

// WithToken sets the API key, $ANTHROPIC_API_KEY by default
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithModel sets the model, required
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL overrides the API endpoint
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(client option.HTTPClient) Option {
	return func(o *options) { o.httpClient = client }
}

// requestOptions returns the SDK options for the resolved values
func (o *options) requestOptions() []option.RequestOption {
	client := o.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithMaxRetries(defaultMaxRetries),
		option.WithRequestTimeout(defaultRequestTimeout),
		option.WithHTTPClient(client),
	}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL))
	}
	return opts
}

func (o *options) fromEnv() {
	o.token = values.StringsCoalesce(o.token, os.Getenv(EnvToken))
}
