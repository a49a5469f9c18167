package openai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
	"github.com/google/uuid"
)

type ChatMessage = openaiclient.ChatMessage

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = openaiclient.ErrEmptyResponse

// ErrMissingToken is returned when no API key is configured.
var ErrMissingToken = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.fromEnv()
	if o.token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}

	c := openaiclient.New(o.model, o.token, o.baseURL, o.organization, o.httpClient)
	return &LLM{client: c}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// Model returns the configured model name.
func (o *LLM) Model() string {
	return values.StringsCoalesce(o.client.Model, openaiclient.DefaultChatModel)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{}, options...)

	chatMsgs, err := ToChatMessages(messages)
	if err != nil {
		return nil, err
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		StopWords:           opts.StopWords,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: opts.MaxTokens,
	}
	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = opts.ToolChoice
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": result.Usage.CompletionTokens,
				"PromptTokens":     result.Usage.PromptTokens,
				"TotalTokens":      result.Usage.TotalTokens,
			},
		}
		if c.Message == nil {
			continue
		}
		choices[i].Content = c.Message.Content
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   values.StringsCoalesce(tool.ID, "call_"+uuid.NewString()),
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ToChatMessages converts the provider-neutral messages to the chat payload.
func ToChatMessages(messages []llms.MessageContent) ([]*ChatMessage, error) {
	chatMsgs := make([]*ChatMessage, 0, len(messages))
	for _, mc := range messages {
		msg := &ChatMessage{}
		switch mc.Role {
		case llms.ChatMessageTypeSystem:
			msg.Role = RoleSystem
		case llms.ChatMessageTypeAI:
			msg.Role = RoleAssistant
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
			msg.Role = RoleUser
		case llms.ChatMessageTypeTool:
			msg.Role = RoleTool
			if len(mc.Parts) != 1 {
				return nil, errors.Errorf("expected exactly one part for role %v, got %v", mc.Role, len(mc.Parts))
			}
			p, ok := mc.Parts[0].(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			msg.ToolCallID = p.ToolCallID
			msg.Content = p.Content
			chatMsgs = append(chatMsgs, msg)
			continue
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}

		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				msg.Content += p.Text
			case llms.ToolCall:
				msg.ToolCalls = append(msg.ToolCalls, toolCallFromToolCall(p))
			default:
				return nil, errors.Errorf("unsupported content part %T", part)
			}
		}
		chatMsgs = append(chatMsgs, msg)
	}
	return chatMsgs, nil
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	if t.Type != string(openaiclient.ToolTypeFunction) || t.Function == nil {
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	tool := openaiclient.Tool{
		Type: openaiclient.ToolTypeFunction,
		Function: openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
		},
	}
	if t.Function.Parameters != nil {
		tool.Function.Parameters = t.Function.Parameters
	}
	return tool, nil
}

// toolCallFromToolCall converts an llms.ToolCall to a ToolCall.
func toolCallFromToolCall(tc llms.ToolCall) openaiclient.ToolCall {
	call := openaiclient.ToolCall{
		ID:   tc.ID,
		Type: openaiclient.ToolTypeFunction,
	}
	if tc.FunctionCall != nil {
		call.Function = openaiclient.ToolFunction{
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		}
	}
	return call
}
