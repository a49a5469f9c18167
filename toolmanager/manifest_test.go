package toolmanager_test

import (
	"testing"

	"github.com/effective-security/cerebrum/toolmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		m, err := toolmanager.ParseManifest("config.json", []byte(`{
			"name": "arxiv",
			"description": ["Search arXiv.", "Returns papers."],
			"meta": {"author": "example", "version": "0.1.0"},
			"build": {"entry": "tool.py"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "arxiv", m.Name)
		assert.Equal(t, toolmanager.Text("Search arXiv. Returns papers."), m.Description)
		assert.Equal(t, "example", m.Meta.Author)
		assert.Equal(t, "0.1.0", m.Meta.Version)
		assert.Equal(t, "tool.py", m.Build.Entry)
		assert.Nil(t, m.MCP)
	})

	t.Run("yaml", func(t *testing.T) {
		m, err := toolmanager.ParseManifest("config.yaml", []byte(`
name: fetch
description:
  - Fetch a URL.
  - Returns markdown.
mcp:
  url: https://mcp.example.com/mcp
  headers:
    Authorization: Bearer token
parameters:
  type: object
  properties:
    url:
      type: string
`))
		require.NoError(t, err)
		assert.Equal(t, toolmanager.Text("Fetch a URL. Returns markdown."), m.Description)
		require.NotNil(t, m.MCP)
		assert.Equal(t, "https://mcp.example.com/mcp", m.MCP.URL)
		assert.Equal(t, "Bearer token", m.MCP.Headers["Authorization"])
		assert.Equal(t, "object", m.Parameters["type"])
	})

	t.Run("string description", func(t *testing.T) {
		m, err := toolmanager.ParseManifest("config.yml", []byte("name: x\ndescription: one line\n"))
		require.NoError(t, err)
		assert.Equal(t, toolmanager.Text("one line"), m.Description)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := toolmanager.ParseManifest("config.json", []byte(`{"description": "no name"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tool manifest")
		assert.Contains(t, err.Error(), "'Name' failed on the 'required' tag")

		_, err = toolmanager.ParseManifest("config.json", []byte(`{"name": "x", "mcp": {"args": ["a"]}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'Command' failed on the 'required_without_all' tag")

		_, err = toolmanager.ParseManifest("config.json", []byte(`{"name": "x", "mcp": {"url": "not a url"}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'URL' failed on the 'url' tag")

		_, err = toolmanager.ParseManifest("config.json", []byte(`{"name": "x", "description": 42}`))
		assert.Error(t, err)

		_, err = toolmanager.ParseManifest("config.yaml", []byte("name: [x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config.yaml")
	})
}

func TestServerManifest(t *testing.T) {
	s := &toolmanager.ServerManifest{Command: "./server.sh", Args: []string{"--stdio"}, Timeout: "5s"}
	cfg := s.ServerConfig("/tools/fetch")
	assert.Equal(t, "/tools/fetch/server.sh", cfg.Command)
	assert.Equal(t, []string{"--stdio"}, cfg.Args)
	assert.Equal(t, "5s", cfg.Timeout)

	s = &toolmanager.ServerManifest{Command: "npx"}
	assert.Equal(t, "npx", s.ServerConfig("/tools/fetch").Command)
}
