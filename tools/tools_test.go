package tools_test

import (
	"context"
	"testing"

	"github.com/effective-security/cerebrum/pkg/schema"
	"github.com/effective-security/cerebrum/tools"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string                                      { return "echo" }
func (echoTool) Description() string                               { return "Echo the input" }
func (echoTool) Parameters() *jsonschema.Schema                    { return nil }
func (echoTool) Call(_ context.Context, in string) (string, error) { return in, nil }

func TestHints(t *testing.T) {
	infos := []tools.Info{
		{Name: "bash", Description: "Run a shell command", Hint: "run shell commands in the workspace"},
		{Name: "readFile", Description: "Read a file"},
		{Name: "noop"},
	}
	exp := "- run shell commands in the workspace\n- readFile: Read a file\n- noop\n"
	assert.Equal(t, exp, tools.Hints(infos))
	assert.Empty(t, tools.Hints(nil))
}

func TestToLLMTools(t *testing.T) {
	params, err := schema.FromAny(map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
	})
	require.NoError(t, err)

	list := tools.ToLLMTools([]tools.Info{
		{Name: "bash", Description: "Run a shell command", Parameters: params},
		tools.InfoFromTool(echoTool{}, "local"),
	})
	require.Len(t, list, 2)
	assert.Equal(t, "function", list[0].Type)
	assert.Equal(t, "bash", list[0].Function.Name)
	assert.Same(t, params, list[0].Function.Parameters)
	assert.Equal(t, "echo", list[1].Function.Name)
	require.NotNil(t, list[1].Function.Parameters)
	assert.Equal(t, "object", list[1].Function.Parameters.Type)
}
