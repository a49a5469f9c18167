package mcp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/metricskey"
	"github.com/effective-security/cerebrum/pkg/schema"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/xlog"
	mcp_golang "github.com/metoro-io/mcp-golang"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "mcp")

var (
	// ErrInvalidConfig is returned when the server config has neither a command nor a URL
	ErrInvalidConfig = errors.New("mcp: server config must specify command or url")
	// ErrNotStarted is returned when the client is used before Start
	ErrNotStarted = errors.New("mcp: client not started")
	// ErrToolNotFound is returned when no client exposes the tool
	ErrToolNotFound = errors.New("mcp: tool not found")
	// ErrClientExists is returned when a client with the same name is already registered
	ErrClientExists = errors.New("mcp: client already exists")
)

// DefaultTimeout is used for the handshake when the config does not specify one
const DefaultTimeout = 60 * time.Second

// ToolNameArg is the argument key selecting a tool in Client.ExecuteDefault
const ToolNameArg = "tool_name"

// ServerConfig describes how to reach an MCP server
type ServerConfig struct {
	// Command starts a stdio server
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// URL of a streamable HTTP server
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Timeout for the handshake, as a duration string
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate returns an error if the config can not be dialed
func (c *ServerConfig) Validate() error {
	if c == nil || (c.Command == "" && c.URL == "") {
		return errors.WithStack(ErrInvalidConfig)
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return errors.WithMessagef(ErrInvalidConfig, "invalid timeout %q", c.Timeout)
		}
	}
	return nil
}

// GetTimeout returns the handshake timeout
func (c *ServerConfig) GetTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// Client is a single MCP server connection
type Client struct {
	name        string
	description string
	hint        string
	cfg         *ServerConfig
	dialer      Dialer

	lock    sync.RWMutex
	session Session
	tools   []tools.Info
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithDialer overrides how sessions are opened
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHint sets the hint reported for tools that have no description
func WithHint(hint string) ClientOption {
	return func(c *Client) {
		c.hint = hint
	}
}

// NewClient returns a client for the server config
func NewClient(description string, cfg *ServerConfig, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		description: description,
		cfg:         cfg,
		dialer:      DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the name the client is registered with in a Pool
func (c *Client) Name() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.name
}

func (c *Client) setName(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.name = name
}

// Description returns the client description
func (c *Client) Description() string {
	return c.description
}

// Config returns the server config
func (c *Client) Config() *ServerConfig {
	return c.cfg
}

// Started returns true if the session is open
func (c *Client) Started() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.session != nil
}

// Start opens the session and performs the handshake.
// Starting a started client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session != nil {
		return nil
	}

	started := time.Now()
	defer metricskey.PerfMCPClientStart.MeasureSince(started, c.name)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.GetTimeout())
	defer cancel()

	s, err := c.dialer(ctx, c.cfg)
	if err == nil {
		if err = s.Initialize(ctx); err != nil {
			_ = s.Close()
		}
	}
	if err != nil {
		metricskey.StatsMCPClientStartFailed.IncrCounter(1, c.name)
		logger.ContextKV(ctx, xlog.ERROR,
			"client", c.name,
			"command", c.cfg.Command,
			"url", redactURL(c.cfg.URL),
			"err", err.Error())
		return errors.Wrapf(err, "failed to start MCP client %q", c.name)
	}

	metricskey.StatsMCPClientStarted.IncrCounter(1, c.name)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "started",
		"client", c.name,
		"elapsed", time.Since(started).String())

	c.session = s
	return nil
}

// Stop closes the session. Stopping a stopped client is a no-op.
func (c *Client) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.tools = nil

	logger.KV(xlog.DEBUG, "status", "stopped", "client", c.name)
	if err != nil {
		return errors.Wrapf(err, "failed to stop MCP client %q", c.name)
	}
	return nil
}

func (c *Client) getSession() (Session, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.session == nil {
		return nil, errors.WithMessagef(ErrNotStarted, "client %q", c.name)
	}
	return c.session, nil
}

// Tools returns the tools exposed by the server.
// The list is fetched once per session.
func (c *Client) Tools(ctx context.Context) ([]tools.Info, error) {
	c.lock.RLock()
	cached := c.tools
	c.lock.RUnlock()
	if cached != nil {
		return cached, nil
	}

	s, err := c.getSession()
	if err != nil {
		return nil, err
	}

	name := c.Name()
	list := []tools.Info{}
	var cursor *string
	for {
		resp, err := s.ListTools(ctx, cursor)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools of %q", name)
		}
		for _, t := range resp.Tools {
			params, err := schema.FromAny(t.InputSchema)
			if err != nil {
				return nil, errors.WithMessagef(err, "tool %q of %q", t.Name, name)
			}
			info := tools.Info{
				Name:       t.Name,
				Client:     name,
				Parameters: params,
			}
			if t.Description != nil {
				info.Description = *t.Description
			}
			if info.Description == "" {
				info.Hint = c.hint
			}
			list = append(list, info)
		}
		if resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	c.lock.Lock()
	if c.session == s {
		c.tools = list
	}
	c.lock.Unlock()

	return list, nil
}

// Execute calls the tool and returns the concatenated text content of the result
func (c *Client) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	s, err := c.getSession()
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	resp, err := s.CallTool(ctx, toolName, args)
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool %q of %q", toolName, c.Name())
	}
	return ResponseText(resp), nil
}

// ExecuteDefault calls a tool selected by the ToolNameArg argument,
// or the only tool the server exposes.
func (c *Client) ExecuteDefault(ctx context.Context, args map[string]any) (string, error) {
	if name, ok := args[ToolNameArg].(string); ok && name != "" {
		rest := make(map[string]any, len(args))
		for k, v := range args {
			if k != ToolNameArg {
				rest[k] = v
			}
		}
		return c.Execute(ctx, name, rest)
	}

	list, err := c.Tools(ctx)
	if err != nil {
		return "", err
	}
	if len(list) != 1 {
		return "", errors.WithMessagef(ErrToolNotFound,
			"client %q exposes %d tools, specify %q", c.Name(), len(list), ToolNameArg)
	}
	return c.Execute(ctx, list[0].Name, args)
}

// ResponseText concatenates the text content of the tool response
func ResponseText(resp *mcp_golang.ToolResponse) string {
	if resp == nil {
		return ""
	}
	var buf strings.Builder
	for _, content := range resp.Content {
		if content != nil && content.TextContent != nil {
			buf.WriteString(content.TextContent.Text)
		}
	}
	return buf.String()
}
