package mcp

import (
	"context"
	"io"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport"
	mcphttp "github.com/metoro-io/mcp-golang/transport/http"
	"github.com/metoro-io/mcp-golang/transport/stdio"
)

//go:generate mockgen -source=session.go -destination=../mocks/mockmcp/session_mock.gen.go -package mockmcp

// Session is a connected MCP client session
type Session interface {
	// Initialize performs the MCP handshake
	Initialize(ctx context.Context) error
	// ListTools returns a page of tools, cursor is nil for the first page
	ListTools(ctx context.Context, cursor *string) (*mcp_golang.ToolsResponse, error)
	// CallTool invokes the tool with arguments
	CallTool(ctx context.Context, name string, args any) (*mcp_golang.ToolResponse, error)
	// Close terminates the session and releases the transport
	Close() error
}

// Dialer opens a session to the server described by the config
type Dialer func(ctx context.Context, cfg *ServerConfig) (Session, error)

// DefaultDialer connects with stdio when Command is set, or HTTP when URL is set
func DefaultDialer(_ context.Context, cfg *ServerConfig) (Session, error) {
	switch {
	case cfg.Command != "":
		return dialStdio(cfg)
	case cfg.URL != "":
		return dialHTTP(cfg)
	}
	return nil, errors.WithStack(ErrInvalidConfig)
}

type librarySession struct {
	client    *mcp_golang.Client
	transport transport.Transport
	cmd       *exec.Cmd
	closers   []io.Closer
	closeOnce sync.Once
}

func dialStdio(cfg *ServerConfig) (Session, error) {
	// the subprocess outlives the start context, it is killed on Close
	cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdout")
	}
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", cfg.Command)
	}

	logger.KV(xlog.DEBUG, "status", "started", "command", cfg.Command, "pid", cmd.Process.Pid)

	t := stdio.NewStdioServerTransportWithIO(stdout, stdin)
	return &librarySession{
		client:    mcp_golang.NewClient(t),
		transport: t,
		cmd:       cmd,
		closers:   []io.Closer{stdin},
	}, nil
}

func dialHTTP(cfg *ServerConfig) (Session, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.WithMessagef(ErrInvalidConfig, "invalid URL %q", cfg.URL)
	}

	t := mcphttp.NewHTTPClientTransport(u.RequestURI()).
		WithBaseURL(u.Scheme + "://" + u.Host)
	for k, v := range cfg.Headers {
		t = t.WithHeader(k, v)
	}
	return &librarySession{
		client:    mcp_golang.NewClient(t),
		transport: t,
	}, nil
}

func (s *librarySession) Initialize(ctx context.Context) error {
	_, err := s.client.Initialize(ctx)
	return err
}

func (s *librarySession) ListTools(ctx context.Context, cursor *string) (*mcp_golang.ToolsResponse, error) {
	return s.client.ListTools(ctx, cursor)
}

func (s *librarySession) CallTool(ctx context.Context, name string, args any) (*mcp_golang.ToolResponse, error) {
	return s.client.CallTool(ctx, name, args)
}

func (s *librarySession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
		for _, c := range s.closers {
			_ = c.Close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			done := make(chan struct{})
			go func() {
				_ = s.cmd.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				_ = s.cmd.Process.Kill()
				<-done
			}
		}
	})
	return err
}
