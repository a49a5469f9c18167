package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llms/openai"
	"github.com/effective-security/cerebrum/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New_MissingToken(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := openai.New()
	assert.ErrorIs(t, err, openai.ErrMissingToken)
}

func Test_GenerateContent_ToolCalls(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
	"id": "chatcmpl-1",
	"model": "gpt-4o",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "bash", "arguments": "{\"command\":\"ls\"}"}},
				{"id": "call_2", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\":\"go.mod\"}"}}
			]
		}
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`))
	}))
	defer server.Close()

	llm, err := openai.New(
		openai.WithToken("test-key"),
		openai.WithBaseURL(server.URL),
		openai.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())
	assert.Equal(t, "gpt-4o", llm.Model())

	params, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
		},
		"required": []string{"command"},
	})
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.MessageFromTextParts(llms.ChatMessageTypeHuman, "list files")},
		llms.WithModel("gpt-4o"),
		llms.WithTools([]llms.Tool{{
			Type:     "function",
			Function: &llms.FunctionDefinition{Name: "bash", Description: "run a command", Parameters: params},
		}}),
	)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "list files"}, msgs[0])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "bash", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "bash", calls[0].FunctionCall.Name)
	assert.Equal(t, `{"command":"ls"}`, calls[0].FunctionCall.Arguments)
	assert.Equal(t, "read_file", calls[1].FunctionCall.Name)
	assert.Equal(t, 15, resp.Choices[0].GenerationInfo["TotalTokens"])
}

func Test_GenerateContent_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Test") {
		case "empty":
			_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
		}
	}))
	defer server.Close()

	llm, err := openai.New(openai.WithToken("bad"), openai.WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	msgs := []llms.MessageContent{llms.MessageFromTextParts(llms.ChatMessageTypeHuman, "hi")}
	_, err = llm.GenerateContent(context.Background(), msgs)
	assert.EqualError(t, err, "API returned unexpected status code: 401: invalid key")

	llm, err = openai.New(openai.WithToken("good"), openai.WithBaseURL(server.URL), openai.WithHTTPClient(headerDoer{"empty"}))
	require.NoError(t, err)
	_, err = llm.GenerateContent(context.Background(), msgs)
	assert.ErrorIs(t, err, openai.ErrEmptyResponse)
}

func Test_ToChatMessages(t *testing.T) {
	msgs, err := openai.ToChatMessages([]llms.MessageContent{
		llms.MessageFromTextParts(llms.ChatMessageTypeSystem, "be brief"),
		llms.MessageFromToolCalls(llms.ChatMessageTypeAI, llms.ToolCall{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "bash", Arguments: `{}`},
		}),
		llms.MessageFromToolResponse(llms.ChatMessageTypeTool, llms.ToolCallResponse{ToolCallID: "call_1", Name: "bash", Content: "ok"}),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, openai.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content)
	assert.Equal(t, openai.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "bash", msgs[1].ToolCalls[0].Function.Name)
	assert.Equal(t, openai.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)

	_, err = openai.ToChatMessages([]llms.MessageContent{{Role: "unknown"}})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)

	_, err = openai.ToChatMessages([]llms.MessageContent{llms.MessageFromTextParts(llms.ChatMessageTypeTool, "x")})
	assert.EqualError(t, err, "expected part of type ToolCallResponse for role tool, got llms.TextContent")
}

type headerDoer struct {
	value string
}

func (d headerDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Test", d.value)
	return http.DefaultClient.Do(req)
}
