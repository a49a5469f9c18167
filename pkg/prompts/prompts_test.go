package prompts_test

import (
	"testing"

	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	s, err := prompts.Render(`You are {{ .Name | upper }}.{{ if .Hints }}
Tools:
{{ .Hints }}{{ end }}`, map[string]any{
		"Name":  "code-executor",
		"Hints": "- run shell commands\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "You are CODE-EXECUTOR.\nTools:\n- run shell commands\n", s)

	s, err = prompts.Render(`{{ .Missing | default "none" }}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "none", s)

	_, err = prompts.Render(`{{ .Name `, nil)
	assert.ErrorContains(t, err, "failed to parse prompt template")
}

func TestSystemMessage(t *testing.T) {
	t.Parallel()

	msgs, err := prompts.SystemMessage("  {{ .Empty }} ", map[string]any{"Empty": ""})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = prompts.SystemMessage("Use {{ .Tool }}", map[string]string{"Tool": "bash"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, "Use bash\n", msgs[0].GetContent())
}
