package mcp

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
)

const (
	// SmitheryCLI is the npm package of the Smithery CLI
	SmitheryCLI = "@smithery/cli@latest"
	// SmitheryServerURL is the base URL of hosted Smithery servers
	SmitheryServerURL = "https://server.smithery.ai"
	// SmitheryAPIKeyEnvVarName is the environment variable with the Smithery API key
	SmitheryAPIKeyEnvVarName = "SMITHERY_API_KEY" //nolint:gosec
)

// ErrMissingSmitheryAPIKey is returned when a hosted server is requested without an API key
var ErrMissingSmitheryAPIKey = errors.New("mcp: missing Smithery API key, set it in the SMITHERY_API_KEY environment variable")

// SmitheryOptions configures a Smithery package client
type SmitheryOptions struct {
	// Hosted connects to the Smithery hosted server instead of running the package locally
	Hosted bool
	APIKey string
	// Config is passed to the server as JSON
	Config  map[string]any
	BaseURL string
	// ClientOptions are applied to the created client
	ClientOptions []ClientOption
}

// SmitheryOption configures SmitheryOptions
type SmitheryOption func(*SmitheryOptions)

// WithSmitheryHosted uses the Smithery hosted server
func WithSmitheryHosted() SmitheryOption {
	return func(o *SmitheryOptions) {
		o.Hosted = true
	}
}

// WithSmitheryAPIKey sets the API key, defaults to SMITHERY_API_KEY
func WithSmitheryAPIKey(key string) SmitheryOption {
	return func(o *SmitheryOptions) {
		o.APIKey = key
	}
}

// WithSmitheryConfig sets the server configuration
func WithSmitheryConfig(cfg map[string]any) SmitheryOption {
	return func(o *SmitheryOptions) {
		o.Config = cfg
	}
}

// WithSmitheryBaseURL overrides the hosted server base URL
func WithSmitheryBaseURL(u string) SmitheryOption {
	return func(o *SmitheryOptions) {
		o.BaseURL = u
	}
}

// WithSmitheryClientOptions passes options to the created client
func WithSmitheryClientOptions(opts ...ClientOption) SmitheryOption {
	return func(o *SmitheryOptions) {
		o.ClientOptions = append(o.ClientOptions, opts...)
	}
}

// SmitheryServerConfig returns the server config for a Smithery package,
// for example `@auchenberg/claude-code-mcp`.
func SmitheryServerConfig(pkgName string, opts ...SmitheryOption) (*ServerConfig, error) {
	pkgName = strings.TrimSpace(pkgName)
	if pkgName == "" {
		return nil, errors.WithMessage(ErrInvalidConfig, "empty Smithery package name")
	}

	o := &SmitheryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	apiKey := values.StringsCoalesce(o.APIKey, os.Getenv(SmitheryAPIKeyEnvVarName))

	var configJSON []byte
	if len(o.Config) > 0 {
		var err error
		if configJSON, err = json.Marshal(o.Config); err != nil {
			return nil, errors.Wrap(err, "failed to encode Smithery config")
		}
	}

	if o.Hosted {
		if apiKey == "" {
			return nil, errors.WithStack(ErrMissingSmitheryAPIKey)
		}
		q := url.Values{}
		q.Set("api_key", apiKey)
		if len(configJSON) > 0 {
			q.Set("config", base64.StdEncoding.EncodeToString(configJSON))
		}
		base := strings.TrimSuffix(values.StringsCoalesce(o.BaseURL, SmitheryServerURL), "/")
		return &ServerConfig{
			URL: base + "/" + strings.TrimPrefix(pkgName, "/") + "/mcp?" + q.Encode(),
		}, nil
	}

	args := []string{"-y", SmitheryCLI, "run", pkgName}
	if len(configJSON) > 0 {
		args = append(args, "--config", string(configJSON))
	}
	if apiKey != "" {
		args = append(args, "--key", apiKey)
	}
	return &ServerConfig{
		Command: "npx",
		Args:    args,
	}, nil
}

// FromSmithery returns a client for a package published on the Smithery registry
func FromSmithery(pkgName, description string, opts ...SmitheryOption) (*Client, error) {
	cfg, err := SmitheryServerConfig(pkgName, opts...)
	if err != nil {
		return nil, err
	}
	o := &SmitheryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return NewClient(description, cfg, o.ClientOptions...)
}

// redactURL hides credentials passed in the query
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	q := u.Query()
	for _, k := range []string{"api_key", "key", "token"} {
		if q.Has(k) {
			q.Set(k, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
