package llms_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/cerebrum/mocks/mockllms"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewCallOptions(t *testing.T) {
	tools := []llms.Tool{
		{Type: "function", Function: &llms.FunctionDefinition{Name: "shell"}},
	}

	opts := llms.NewCallOptions(llms.CallOptions{Model: "default", MaxTokens: 10},
		llms.WithModel("gpt-4o"),
		llms.WithTemperature(0.2),
		llms.WithTopP(0.9),
		llms.WithStopWords([]string{"stop"}),
		llms.WithTools(tools),
		llms.WithToolChoice(llms.ToolChoiceRequired),
	)
	assert.Equal(t, llms.CallOptions{
		Model:       "gpt-4o",
		MaxTokens:   10,
		Temperature: 0.2,
		TopP:        0.9,
		StopWords:   []string{"stop"},
		Tools:       tools,
		ToolChoice:  llms.ToolChoiceRequired,
	}, opts)

	opts = llms.NewCallOptions(opts, llms.WithMaxTokens(100))
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, "gpt-4o", opts.Model)
}

func TestChooseFunction(t *testing.T) {
	bs, err := json.Marshal(llms.ChooseFunction("shell"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"shell"}}`, string(bs))
}

func TestParseProviderType(t *testing.T) {
	for in, exp := range map[string]llms.ProviderType{
		"OPENAI":     llms.ProviderOpenAI,
		"open_ai":    llms.ProviderOpenAI,
		" anthropic": llms.ProviderAnthropic,
	} {
		pt, err := llms.ParseProviderType(in)
		require.NoError(t, err, in)
		assert.Equal(t, exp, pt)
	}

	_, err := llms.ParseProviderType("bedrock")
	assert.EqualError(t, err, `unsupported provider type: "bedrock"`)
}

type namedModel struct {
	*mockllms.MockModel
}

func (namedModel) Model() string {
	return "gpt-4o-mini"
}

func TestModelName(t *testing.T) {
	m := mockllms.NewMockModel(gomock.NewController(t))
	assert.Empty(t, llms.ModelName(m))
	assert.Equal(t, "gpt-4o-mini", llms.ModelName(namedModel{m}))
}
