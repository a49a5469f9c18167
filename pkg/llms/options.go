package llms

import (
	"github.com/invopop/jsonschema"
)

// Tool choices accepted by WithToolChoice, next to a ToolChoice value
const (
	ToolChoiceNone     = "none"
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

// CallOptions of a GenerateContent call. Zero values are not sent.
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	StopWords   []string

	// Tools offered to the model
	Tools []Tool
	// ToolChoice is one of the ToolChoice* strings or a ToolChoice
	ToolChoice any
}

// CallOption sets a field of CallOptions
type CallOption func(*CallOptions)

// NewCallOptions returns the defaults with the options applied
func NewCallOptions(defaults CallOptions, options ...CallOption) CallOptions {
	for _, opt := range options {
		opt(&defaults)
	}
	return defaults
}

// Tool is a function the model may call
type Tool struct {
	// Type is always "function"
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable function and its JSON arguments
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ToolChoice forces a specific function
type ToolChoice struct {
	Type     string             `json:"type"`
	Function *FunctionReference `json:"function,omitempty"`
}

// FunctionReference names a function of a ToolChoice
type FunctionReference struct {
	Name string `json:"name"`
}

// ChooseFunction returns a ToolChoice forcing the named function
func ChooseFunction(name string) ToolChoice {
	return ToolChoice{Type: "function", Function: &FunctionReference{Name: name}}
}

func WithModel(model string) CallOption {
	return func(o *CallOptions) { o.Model = model }
}

// WithMaxTokens limits the generated tokens
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = maxTokens }
}

func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) { o.Temperature = temperature }
}

func WithTopP(topP float64) CallOption {
	return func(o *CallOptions) { o.TopP = topP }
}

// WithStopWords stops the generation at any of the words
func WithStopWords(stopWords []string) CallOption {
	return func(o *CallOptions) { o.StopWords = stopWords }
}

// WithTools offers the tools to the model
func WithTools(tools []Tool) CallOption {
	return func(o *CallOptions) { o.Tools = tools }
}

// WithToolChoice sets how the model picks tools, see ToolChoice* and ChooseFunction
func WithToolChoice(choice any) CallOption {
	return func(o *CallOptions) { o.ToolChoice = choice }
}
