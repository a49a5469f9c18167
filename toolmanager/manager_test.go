package toolmanager_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/effective-security/cerebrum/store"
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

func TestNew(t *testing.T) {
	m, err := toolmanager.New("")
	require.NoError(t, err)
	assert.Equal(t, toolmanager.DefaultBaseURL, m.BaseURL())
	assert.Contains(t, m.CacheDir(), filepath.FromSlash(toolmanager.DefaultCacheFolder))

	m, err = toolmanager.New("http://localhost:8080/", toolmanager.WithCacheDir("/tmp/cache"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", m.BaseURL())
	assert.Equal(t, "/tmp/cache", m.CacheDir())
}

func TestLoadTool_Local(t *testing.T) {
	ctx := context.Background()
	m, err := toolmanager.New("", toolmanager.WithLocalPaths("testdata/none", "testdata/tools"))
	require.NoError(t, err)

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Local: true})
	assert.EqualError(t, err, "toolmanager: tool name is required")

	tool, err := m.LoadTool(ctx, toolmanager.LoadOptions{Name: "bing_search", Local: true})
	require.NoError(t, err)
	assert.Equal(t, "bing_search", tool.Name())
	assert.Equal(t, toolmanager.SourceLocal, tool.Source)
	assert.Equal(t, filepath.Join("testdata", "tools", "example", "bing_search"), tool.Dir)
	assert.Equal(t, []string{"config.json", "tool.py"}, tool.Files)
	assert.Equal(t, toolmanager.Text("Search the web with Bing. Returns the top results."), tool.Manifest.Description)
	assert.False(t, tool.IsBuiltin())

	exp := `name: bing_search
description: Search the web with Bing. Returns the top results.
author: example
version: 0.0.1
entry: tool.py
source: local
dir: testdata/tools/example/bing_search
files:
    - config.json
    - tool.py
`
	assert.Equal(t, exp, tool.String())

	info, err := tool.Info()
	require.NoError(t, err)
	assert.Equal(t, "bing_search", info.Name)
	assert.Equal(t, []string{"query"}, info.Parameters.Required)

	_, err = tool.MCPClient()
	assert.ErrorIs(t, err, toolmanager.ErrNoMCPServer)
	_, err = tool.Builtin()
	assert.EqualError(t, err, `toolmanager: tool "bing_search" is not builtin`)

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "bing_search", Author: "someone", Local: true})
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "missing", Local: true})
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)
}

func TestLoadTool_LocalMCP(t *testing.T) {
	m, err := toolmanager.New("", toolmanager.WithLocalPaths("testdata/tools"))
	require.NoError(t, err)

	tool, err := m.LoadTool(context.Background(), toolmanager.LoadOptions{Name: "fetch", Local: true})
	require.NoError(t, err)
	require.NotNil(t, tool.Manifest.MCP)

	info, err := tool.Info()
	require.NoError(t, err)
	assert.Equal(t, "fetch: download a web page", info.GetHint())
	assert.Equal(t, "object", info.Parameters.Type)

	c, err := tool.MCPClient()
	require.NoError(t, err)
	assert.Equal(t, "Fetch a URL and return its content as markdown", c.Description())
	assert.Equal(t, filepath.Join("testdata", "tools", "mcp", "fetch", "server.sh"), c.Config().Command)
	assert.Equal(t, []string{"--stdio"}, c.Config().Args)
	assert.False(t, c.Started())
}

func TestBuiltin(t *testing.T) {
	assert.Contains(t, toolmanager.Builtins(), tavily.ToolName)

	_, err := toolmanager.NewBuiltin("missing")
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)

	t.Setenv(tavily.APIKeyEnvVarName, "test-key")
	tool := &toolmanager.Tool{Manifest: &toolmanager.Manifest{
		Name:  "web_search",
		Build: toolmanager.Build{Entry: "builtin:" + tavily.ToolName},
	}}
	assert.True(t, tool.IsBuiltin())
	impl, err := tool.Builtin()
	require.NoError(t, err)
	assert.Equal(t, tavily.ToolName, impl.Name())
}

func registryServer(t *testing.T, downloads *int32) *httptest.Server {
	config := map[string]any{
		"name":        "arxiv",
		"description": "Search arXiv",
		"meta":        map[string]any{"author": "example", "version": "0.1.0"},
		"build":       map[string]any{"entry": "tool.py"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cerebrum/tool/download", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("name") != "arxiv" {
			http.NotFound(w, r)
			return
		}
		if q.Get("name") == "arxiv" && q.Get("author") == "broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		atomic.AddInt32(downloads, 1)
		assert.Equal(t, "example", q.Get("author"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"author":  "example",
			"name":    "arxiv",
			"version": "0.1.0",
			"config":  config,
			"files": map[string]string{
				"tool.py":         base64.StdEncoding.EncodeToString([]byte("print('arxiv')")),
				"lib/__init__.py": base64.StdEncoding.EncodeToString([]byte("")),
			},
		})
	})
	mux.HandleFunc("/cerebrum/tool/list", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["arxiv","bing_search"]`))
	})
	return httptest.NewServer(mux)
}

func TestLoadTool_Remote(t *testing.T) {
	ctx := context.Background()
	var downloads int32
	srv := registryServer(t, &downloads)
	defer srv.Close()

	cacheDir := t.TempDir()
	st := store.NewMemoryStore("test")
	m, err := toolmanager.New(srv.URL,
		toolmanager.WithCacheDir(cacheDir),
		toolmanager.WithHTTPClient(srv.Client()),
		toolmanager.WithStore(st),
	)
	require.NoError(t, err)

	tool, err := m.LoadTool(ctx, toolmanager.LoadOptions{Name: "arxiv", Author: "example"})
	require.NoError(t, err)
	assert.Equal(t, toolmanager.SourceRemote, tool.Source)
	assert.Equal(t, filepath.Join(cacheDir, "example", "arxiv", "0.1.0"), tool.Dir)
	assert.Equal(t, []string{"config.json", "lib/__init__.py", "tool.py"}, tool.Files)
	assert.Equal(t, "0.1.0", tool.Manifest.Meta.Version)

	bs, err := os.ReadFile(filepath.Join(tool.Dir, "tool.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('arxiv')", string(bs))

	keys, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.PackageKey{
		{Author: "example", Name: "arxiv", Version: "0.1.0"},
		{Author: "example", Name: "arxiv", Version: "latest"},
	}, keys)

	// served from the cache
	tool, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "arxiv", Author: "example"})
	require.NoError(t, err)
	assert.Equal(t, toolmanager.SourceCache, tool.Source)
	assert.Equal(t, int32(1), atomic.LoadInt32(&downloads))

	// the cache folder is restored from the store
	require.NoError(t, os.RemoveAll(cacheDir))
	tool, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "arxiv", Author: "example", Version: "0.1.0"})
	require.NoError(t, err)
	assert.Equal(t, toolmanager.SourceCache, tool.Source)
	assert.FileExists(t, filepath.Join(tool.Dir, "tool.py"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&downloads))

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "missing"})
	assert.ErrorIs(t, err, toolmanager.ErrToolNotFound)

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "arxiv", Author: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry returned 500 Internal Server Error: boom")

	names, err := m.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv", "bing_search"}, names)
}

func TestLoadTool_RemoteInvalidPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("name") {
		case "escape":
			_, _ = w.Write([]byte(`{"name":"escape","config":{"name":"escape"},"files":{"../../evil.sh":""}}`))
		case "noconfig":
			_, _ = w.Write([]byte(`{"name":"noconfig"}`))
		case "badfile":
			_, _ = w.Write([]byte(`{"name":"badfile","config":"{\"name\":\"badfile\"}","files":{"a.txt":"%%%"}}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	m, err := toolmanager.New(srv.URL, toolmanager.WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "escape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid file name "../../evil.sh"`)

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "noconfig"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no config")

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "badfile"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode a.txt")

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode registry response")
}

func TestLoadTool_RemoteKeyOutsideCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		config := `{"name":"` + name + `","build":{"entry":"tool.py"}}`
		switch name {
		case "author":
			_, _ = w.Write([]byte(`{"author":"../../escaped","name":"author","version":"1.0.0","config":` + config + `,"files":{"tool.py":""}}`))
		case "version":
			_, _ = w.Write([]byte(`{"author":"example","name":"version","version":"..","config":` + config + `}`))
		default:
			_, _ = w.Write([]byte(`{"author":"example","name":"x/../../escaped","config":` + config + `}`))
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	cacheDir := filepath.Join(root, "a", "b", "cache")
	st := store.NewMemoryStore("test")
	m, err := toolmanager.New(srv.URL, toolmanager.WithCacheDir(cacheDir), toolmanager.WithStore(st))
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"author", "version", "name"} {
		_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: name})
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "store: invalid package key segment", name)
	}

	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "arxiv", Author: ".."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store: invalid package key segment ".."`)

	// a cached package with a folder outside of the cache is downloaded again
	require.NoError(t, st.Put(ctx, &store.Package{
		PackageKey: store.PackageKey{Author: "example", Name: "author"},
		Config:     []byte(`{"name":"author"}`),
		Dir:        filepath.Join(root, "escaped"),
	}))
	_, err = m.LoadTool(ctx, toolmanager.LoadOptions{Name: "author", Author: "example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: invalid package key segment")

	assert.NoDirExists(t, filepath.Join(root, "escaped"))
	assert.NoDirExists(t, filepath.Join(root, "a", "escaped"))
	keys, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
