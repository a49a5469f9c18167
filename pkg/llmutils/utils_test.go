package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"command\": \"ls\", \"dir\": \"/tmp\"}\n\n```\n\n"
	expected := "{\"command\": \"ls\", \"dir\": \"/tmp\"}"
	assert.Equal(t, expected, string(llmutils.CleanJSON([]byte(llmOutput))))

	llmOutput = "Here you go:\n```json\n\n[{\"command\": \"ls\"}]\n```\n\n"
	assert.Equal(t, "[{\"command\": \"ls\"}]", string(llmutils.CleanJSON([]byte(llmOutput))))

	assert.Equal(t, "no json", string(llmutils.CleanJSON([]byte("no json"))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"command\": \"ls\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"command\": \"ls\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"command\": \"ls\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"command\": \"ls\"}\n\n```\n\n"))
}

func Test_ParseArguments(t *testing.T) {
	args, err := llmutils.ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = llmutils.ParseArguments("null")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = llmutils.ParseArguments(`{"command":"ls -la"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"command": "ls -la"}, args)

	args, err = llmutils.ParseArguments("```json\n{\"command\":\"pwd\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"command": "pwd"}, args)

	_, err = llmutils.ParseArguments("not json")
	assert.ErrorContains(t, err, "invalid tool arguments")
}

func Test_ToJSON(t *testing.T) {
	type tool struct {
		Name    string `json:"name" yaml:"name"`
		Version string `json:"version" yaml:"version"`
	}
	v := tool{Name: "bing_search", Version: "0.0.1"}
	assert.Equal(t, `{"name":"bing_search","version":"0.0.1"}`, llmutils.ToJSON(v))
	assert.Equal(t, "{\n\t\"name\": \"bing_search\",\n\t\"version\": \"0.0.1\"\n}", llmutils.ToJSONIndent(v))
	assert.Equal(t, "name: bing_search\nversion: 0.0.1\n", llmutils.ToYAML(v))
}

func Test_CountSizes(t *testing.T) {
	msgs := []llms.MessageContent{
		llms.MessageFromTextParts(llms.ChatMessageTypeHuman, "Hello"),
		llms.MessageFromToolCalls(llms.ChatMessageTypeAI, llms.ToolCall{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "ls", Arguments: "{}"}}),
		llms.MessageFromToolResponse(llms.ChatMessageTypeTool, llms.ToolCallResponse{ToolCallID: "1", Name: "ls", Content: "go.mod"}),
	}
	// human(5)+Hello(5) + ai(2)+1+function(8)+ls(2)+{}(2) + tool(4)+1+ls(2)+go.mod(6)
	assert.Equal(t, uint64(38), llmutils.CountMessagesContentSize(msgs))

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:        "Hello world",
				GenerationInfo: map[string]any{"InputTokens": int64(10), "OutputTokens": int64(5), "TotalTokens": int64(15)},
			},
		},
	}
	assert.Equal(t, uint64(11), llmutils.CountResponseContentSize(resp))
	assert.Equal(t, uint64(0), llmutils.CountResponseContentSize(nil))

	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(10), in)
	assert.Equal(t, int64(5), out)
	assert.Equal(t, int64(15), total)
}

func TestPrintMessageContents(t *testing.T) {
	var buf strings.Builder
	llmutils.PrintMessageContents(&buf, []llms.MessageContent{
		llms.MessageFromTextParts(llms.ChatMessageTypeHuman, "list files"),
		llms.MessageFromToolCalls(llms.ChatMessageTypeAI, llms.ToolCall{ID: "1", FunctionCall: &llms.FunctionCall{Name: "bash", Arguments: `{"command":"ls"}`}}),
		llms.MessageFromToolResponse(llms.ChatMessageTypeTool, llms.ToolCallResponse{ToolCallID: "1", Name: "bash", Content: "go.mod"}),
	})
	exp := `HUMAN: list files
AI: ToolCall: 1 (bash), input: {"command":"ls"}
TOOL: ToolCallResponse ID=1, Name=bash, Content=go.mod
`
	assert.Equal(t, exp, buf.String())
}
