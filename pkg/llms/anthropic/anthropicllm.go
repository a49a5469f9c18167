package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
)

const (
	DefaultMaxTokens = 4096
)

type LLM struct {
	client *anthropic.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns the adapter over the Anthropic SDK.
// The model is required, the token defaults to $ANTHROPIC_API_KEY.
func New(opts ...Option) (*LLM, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.fromEnv()

	if o.token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}
	if o.model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	client := anthropic.NewClient(o.requestOptions()...)
	return &LLM{
		client: &client,
		model:  o.model,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// Model returns the configured model name.
func (o *LLM) Model() string {
	return o.model
}

// GenerateContent implements the Model interface.
// Text blocks are joined into a single choice together with all tool_use
// blocks, in the order the API returned them.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.model}, options...)

	sdkMessages, systemPrompt, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	if tools := ToTools(opts.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	result, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	if len(result.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason: string(result.StopReason),
		GenerationInfo: map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
			"ID":           result.ID,
		},
	}

	var text []string
	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, content.Text)
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: string(args),
				},
			})
		}
	}
	choice.Content = strings.Join(text, "\n")

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// ToTools converts LLM tool definitions to Anthropic SDK tool parameters.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: "object",
		}
		if p := tool.Function.Parameters; p != nil {
			if p.Properties != nil {
				properties := make(map[string]any)
				for pair := p.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
				inputSchema.Properties = properties
			}
			if len(p.Required) > 0 {
				inputSchema.Required = p.Required
			}
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return sdkTools
}

// ProcessMessages converts generic message content to Anthropic SDK message parameters,
// returning the system prompt separately.
func ProcessMessages(messages []llms.MessageContent) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		var contents []anthropic.ContentBlockParamUnion
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if msg.Role == llms.ChatMessageTypeSystem {
					system = append(system, p.Text)
					continue
				}
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			case llms.ToolCall:
				if msg.Role != llms.ChatMessageTypeAI || p.FunctionCall == nil {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "tool call in %s message", msg.Role)
				}
				var input json.RawMessage
				if err := json.Unmarshal([]byte(values.StringsCoalesce(p.FunctionCall.Arguments, "{}")), &input); err != nil {
					return nil, "", errors.Wrap(err, "anthropic: failed to unmarshal tool call arguments")
				}
				contents = append(contents, anthropic.NewToolUseBlock(p.ID, input, p.FunctionCall.Name))
			case llms.ToolCallResponse:
				if msg.Role != llms.ChatMessageTypeTool {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "tool response in %s message", msg.Role)
				}
				contents = append(contents, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, false))
			default:
				return nil, "", errors.WithMessagef(ErrInvalidContentType, "%T", part)
			}
		}

		switch msg.Role {
		case llms.ChatMessageTypeSystem:
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric, llms.ChatMessageTypeTool:
			chatMessages = append(chatMessages, anthropic.NewUserMessage(contents...))
		case llms.ChatMessageTypeAI:
			chatMessages = append(chatMessages, anthropic.NewAssistantMessage(contents...))
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "%v", msg.Role)
		}
	}
	return chatMessages, strings.Join(system, "\n"), nil
}
