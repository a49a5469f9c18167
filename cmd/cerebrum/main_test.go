package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/cerebrum/toolmanager"
	"github.com/effective-security/cerebrum/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stdout))
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	localPath, err := filepath.Abs(filepath.Join("..", "..", "toolmanager", "testdata", "tools"))
	require.NoError(t, err)

	cfg := "tool_manager:\n" +
		"  base_url: " + baseURL + "\n" +
		"  cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"  local_paths:\n" +
		"    - " + localPath + "\n"
	file := filepath.Join(dir, "cerebrum.yaml")
	require.NoError(t, os.WriteFile(file, []byte(cfg), 0o600))
	return file
}

func TestParseToolRef(t *testing.T) {
	tcases := []struct {
		ref string
		exp toolmanager.LoadOptions
		err string
	}{
		{ref: "arxiv", exp: toolmanager.LoadOptions{Name: "arxiv"}},
		{ref: "example/arxiv", exp: toolmanager.LoadOptions{Author: "example", Name: "arxiv"}},
		{ref: " example/arxiv@0.1.0 ", exp: toolmanager.LoadOptions{Author: "example", Name: "arxiv", Version: "0.1.0"}},
		{ref: "arxiv@latest", exp: toolmanager.LoadOptions{Name: "arxiv", Version: "latest"}},
		{ref: "", err: `invalid tool reference ""`},
		{ref: "example/", err: `invalid tool reference "example/"`},
		{ref: "a/b/c", err: `invalid tool reference "a/b/c"`},
	}

	for _, tc := range tcases {
		t.Run(tc.ref, func(t *testing.T) {
			o, err := parseToolRef(tc.ref)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, o)
		})
	}
}

func TestToolLoad_Local(t *testing.T) {
	file := writeConfig(t, "http://localhost:1")

	out, err := execute(t, "--config", file, "tool", "load", "--local", "example/bing_search")
	require.NoError(t, err)
	assert.Contains(t, out, "name: bing_search\n")
	assert.Contains(t, out, "source: local\n")

	out, err = execute(t, "--config", file, "tool", "load", "--local", "--author", "example", "bing_search")
	require.NoError(t, err)
	assert.Contains(t, out, "author: example\n")

	_, err = execute(t, "--config", file, "tool", "load", "--local", "--author", "someone", "bing_search")
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)

	_, err = execute(t, "--config", file, "tool", "load", "--local", "missing")
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)

	_, err = execute(t, "--config", file, "tool", "load")
	require.Error(t, err)
}

func TestToolList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cerebrum/tool/list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["arxiv","bing_search"]`))
	}))
	defer srv.Close()

	file := writeConfig(t, "http://localhost:1")
	out, err := execute(t, "--config", file, "tool", "list", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "arxiv\nbing_search\n", out)
}

func TestToolBuiltins(t *testing.T) {
	out, err := execute(t, "tool", "builtins")
	require.NoError(t, err)
	assert.Contains(t, out, toolmanager.BuiltinPrefix+tavily.ToolName+"\n")
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)

	_, err = execute(t, "run", "  ")
	assert.EqualError(t, err, "task is required")

	_, err = execute(t, "--config", "missing.yaml", "run", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config missing.yaml")

	t.Setenv("OPENAI_API_KEY", "test-key")
	file := writeConfig(t, "http://localhost:1")
	_, err = execute(t, "--config", file, "run", "--tool", "a/b/c", "hello")
	assert.EqualError(t, err, `invalid tool reference "a/b/c"`)

	_, err = execute(t, "--env", "missing.env", "tool", "builtins")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file missing.env")
}
