// Package tavily provides a builtin web search tool backed by the Tavily API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reflect"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/effective-security/cerebrum/pkg/schema"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
)

const (
	// ToolName is the name the tool is registered with
	ToolName = "tavily_search"
	// APIKeyEnvVarName is the environment variable with the API key
	APIKeyEnvVarName = "TAVILY_API_KEY" //nolint:gosec
)

// ErrMissingAPIKey is returned when the API key is not configured
var ErrMissingAPIKey = errors.Errorf("%s is not set", APIKeyEnvVarName)

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query       string `json:"query" yaml:"query" jsonschema:"title=Query,description=The query to search web."`
	SearchDepth string `json:"search_depth,omitempty" yaml:"search_depth,omitempty" jsonschema:"description=Search depth,enum=basic,enum=advanced"`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// Tool is a tool that provides a web search functionality
type Tool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	params     *jsonschema.Schema
}

var _ tools.ITool = (*Tool)(nil)

// New returns the search tool; the API key defaults to TAVILY_API_KEY
func New(apiKey string) (*Tool, error) {
	apiKey = values.StringsCoalesce(apiKey, os.Getenv(APIKeyEnvVarName))
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Tool{
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		params:     sc.Parameters,
	}, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Search the web and return relevant results with an aggregated answer."
}

func (t *Tool) Parameters() *jsonschema.Schema {
	return t.params
}

// Run performs the search
func (t *Tool) Run(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchResp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   values.StringsCoalesce(req.SearchDepth, "basic"),
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}

// Call implements tools.ITool
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	var req SearchRequest
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.WithStack(tools.ErrFailedUnmarshalInput)
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}
