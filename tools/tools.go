package tools

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/invopop/jsonschema"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// ErrFailedUnmarshalInput is returned when a tool can not parse its input
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the given JSON input and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Callback observes tool execution
type Callback interface {
	OnToolStart(ctx context.Context, client, tool string, args map[string]any)
	OnToolEnd(ctx context.Context, client, tool string, result string)
	OnToolError(ctx context.Context, client, tool string, err error)
}

// Info describes a tool exposed to an agent
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Hint        string `json:"hint,omitempty" yaml:"hint,omitempty"`
	// Client is the name of the pool client serving the tool
	Client     string             `json:"client,omitempty" yaml:"client,omitempty"`
	Parameters *jsonschema.Schema `json:"parameters,omitempty" yaml:"-"`
}

// GetHint returns the hint, or the description when the hint is not set
func (i Info) GetHint() string {
	if i.Hint != "" {
		return i.Hint
	}
	if i.Description != "" {
		return i.Name + ": " + i.Description
	}
	return i.Name
}

// InfoFromTool returns Info for a local tool
func InfoFromTool(t ITool, client string) Info {
	return Info{
		Name:        t.Name(),
		Description: t.Description(),
		Client:      client,
		Parameters:  t.Parameters(),
	}
}

// Hints renders one `- <hint>` line per tool
func Hints(list []Info) string {
	var buf strings.Builder
	for _, info := range list {
		buf.WriteString("- ")
		buf.WriteString(info.GetHint())
		buf.WriteString("\n")
	}
	return buf.String()
}

// ToLLMTools converts tool information to LLM function tools
func ToLLMTools(list []Info) []llms.Tool {
	res := make([]llms.Tool, 0, len(list))
	for _, info := range list {
		params := info.Parameters
		if params == nil {
			params = &jsonschema.Schema{Type: "object"}
		}
		res = append(res, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  params,
			},
		})
	}
	return res
}
