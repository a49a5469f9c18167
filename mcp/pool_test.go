package mcp_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/mocks/mockmcp"
	"github.com/effective-security/cerebrum/mocks/mocktools"
	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockClient(t *testing.T, s mcp.Session) *mcp.Client {
	c, err := mcp.NewClient("test", &mcp.ServerConfig{Command: "test"}, mcp.WithDialer(dialerFor(s)))
	require.NoError(t, err)
	return c
}

func toolsPage(names ...string) *mcp_golang.ToolsResponse {
	resp := &mcp_golang.ToolsResponse{}
	for _, name := range names {
		resp.Tools = append(resp.Tools, mcp_golang.ToolRetType{Name: name, Description: strPtr(name + " tool")})
	}
	return resp
}

func TestPool_AddClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mcp.NewPool()

	require.NoError(t, p.AddClient("b", newMockClient(t, mockmcp.NewMockSession(ctrl))))
	require.NoError(t, p.AddClient("a", newMockClient(t, mockmcp.NewMockSession(ctrl))))

	err := p.AddClient("a", newMockClient(t, mockmcp.NewMockSession(ctrl)))
	assert.ErrorIs(t, err, mcp.ErrClientExists)
	assert.Error(t, p.AddClient("", nil))

	assert.Equal(t, []string{"a", "b"}, p.Names())
	c, ok := p.Client("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.Name())
	_, ok = p.Client("c")
	assert.False(t, ok)
}

func TestPool_StartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sa := mockmcp.NewMockSession(ctrl)
	sb := mockmcp.NewMockSession(ctrl)

	p := mcp.NewPool()
	require.NoError(t, p.AddClient("a", newMockClient(t, sa)))
	require.NoError(t, p.AddClient("b", newMockClient(t, sb)))

	sa.EXPECT().Initialize(gomock.Any()).Return(nil)
	sa.EXPECT().Close().Return(nil).Times(1)
	sb.EXPECT().Initialize(gomock.Any()).Return(errors.New("npx not found"))
	sb.EXPECT().Close().Return(nil).Times(1)

	err := p.Start(context.Background())
	assert.EqualError(t, err, `failed to start MCP client "b": npx not found`)

	for _, name := range p.Names() {
		c, _ := p.Client(name)
		assert.False(t, c.Started(), name)
	}
}

func TestPool_StartKeepsRunningClients(t *testing.T) {
	ctrl := gomock.NewController(t)
	sa := mockmcp.NewMockSession(ctrl)
	sb := mockmcp.NewMockSession(ctrl)
	sc := mockmcp.NewMockSession(ctrl)
	ctx := context.Background()

	p := mcp.NewPool()
	require.NoError(t, p.AddClient("a", newMockClient(t, sa)))
	sa.EXPECT().Initialize(gomock.Any()).Return(nil).Times(1)
	require.NoError(t, p.Start(ctx))

	require.NoError(t, p.AddClient("b", newMockClient(t, sb)))
	require.NoError(t, p.AddClient("c", newMockClient(t, sc)))
	sb.EXPECT().Initialize(gomock.Any()).Return(nil).MaxTimes(1)
	sb.EXPECT().Close().Return(nil).MaxTimes(1)
	sc.EXPECT().Initialize(gomock.Any()).Return(errors.New("connection refused"))
	sc.EXPECT().Close().Return(nil).Times(1)

	err := p.Start(ctx)
	assert.EqualError(t, err, `failed to start MCP client "c": connection refused`)

	a, _ := p.Client("a")
	assert.True(t, a.Started())
	b, _ := p.Client("b")
	assert.False(t, b.Started())
	c, _ := p.Client("c")
	assert.False(t, c.Started())

	sa.EXPECT().Close().Return(nil).Times(1)
	require.NoError(t, p.Stop())
	assert.False(t, a.Started())
}

func TestPool_CallTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	se := mockmcp.NewMockSession(ctrl)
	sf := mockmcp.NewMockSession(ctrl)
	cb := mocktools.NewMockCallback(ctrl)

	p := mcp.NewPool(mcp.WithToolCallback(cb), mcp.WithToolCallback(nil))
	require.NoError(t, p.AddClient("code-executor", newMockClient(t, se)))
	require.NoError(t, p.AddClient("files", newMockClient(t, sf)))

	se.EXPECT().Initialize(gomock.Any()).Return(nil)
	sf.EXPECT().Initialize(gomock.Any()).Return(nil)
	require.NoError(t, p.Start(ctx))

	se.EXPECT().ListTools(gomock.Any(), gomock.Nil()).Return(toolsPage("bash"), nil)
	sf.EXPECT().ListTools(gomock.Any(), gomock.Nil()).Return(toolsPage("readFile", "bash"), nil)

	list, err := p.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bash", list[0].Name)
	assert.Equal(t, "code-executor", list[0].Client)
	assert.Equal(t, "readFile", list[1].Name)
	assert.Equal(t, "files", list[1].Client)

	// by tool name, duplicates go to the first client
	args := map[string]any{"command": "ls"}
	se.EXPECT().CallTool(gomock.Any(), "bash", args).
		Return(mcp_golang.NewToolResponse(mcp_golang.NewTextContent("go.mod")), nil)
	cb.EXPECT().OnToolStart(gomock.Any(), "code-executor", "bash", args)
	cb.EXPECT().OnToolEnd(gomock.Any(), "code-executor", "bash", "go.mod")

	res, err := p.CallTool(ctx, "bash", args)
	require.NoError(t, err)
	assert.Equal(t, "go.mod", res)

	sf.EXPECT().CallTool(gomock.Any(), "readFile", gomock.Any()).Return(nil, errors.New("no such file"))
	cb.EXPECT().OnToolStart(gomock.Any(), "files", "readFile", gomock.Any())
	cb.EXPECT().OnToolError(gomock.Any(), "files", "readFile", gomock.Any())

	_, err = p.CallTool(ctx, "readFile", map[string]any{"path": "x"})
	assert.EqualError(t, err, `failed to call tool "readFile" of "files": no such file`)

	// a client name runs its only tool
	se.EXPECT().CallTool(gomock.Any(), "bash", map[string]any{"command": "pwd"}).
		Return(mcp_golang.NewToolResponse(mcp_golang.NewTextContent("/work")), nil)
	cb.EXPECT().OnToolStart(gomock.Any(), "code-executor", "code-executor", gomock.Any())
	cb.EXPECT().OnToolEnd(gomock.Any(), "code-executor", "code-executor", "/work")

	res, err = p.CallTool(ctx, "code-executor", map[string]any{"command": "pwd"})
	require.NoError(t, err)
	assert.Equal(t, "/work", res)

	_, err = p.CallTool(ctx, "unknown", nil)
	assert.ErrorIs(t, err, mcp.ErrToolNotFound)

	_, err = p.Execute(ctx, "unknown", nil)
	assert.ErrorIs(t, err, mcp.ErrToolNotFound)

	se.EXPECT().Close().Return(nil).Times(1)
	sf.EXPECT().Close().Return(errors.New("already exited")).Times(1)
	err = p.Stop()
	assert.ErrorContains(t, err, "already exited")
	assert.NoError(t, p.Stop())
}
