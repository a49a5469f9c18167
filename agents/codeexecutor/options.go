package codeexecutor

import (
	"github.com/effective-security/cerebrum/agents"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/tools"
)

const (
	// DefaultName is the name the agent registers its MCP client under
	DefaultName = "code-executor"
	// DefaultDescription describes the agent and its MCP client
	DefaultDescription = "Execute shell commands, analyze code, and manage files seamlessly"
	// DefaultModel is preferred when the LLM is selected from config
	DefaultModel = "gpt-4o"
	// DefaultPackage is the Smithery package providing the code tools
	DefaultPackage = "@auchenberg/claude-code-mcp"
)

// Option configures the CodeExecutor
type Option func(*Config)

// Config holds the CodeExecutor settings
type Config struct {
	Name        string
	Description string
	ModelName   string
	// Package is the Smithery package of the MCP server
	Package string
	// SystemPrompt is an optional template rendered with Task and ToolHints
	SystemPrompt string

	Pool            *mcp.Pool
	Client          *mcp.Client
	SmitheryOptions []mcp.SmitheryOption
	Callback        agents.Callback
	Tools           []tools.ITool
}

// WithName sets the agent name, which is also the MCP client name
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithDescription sets the agent description
func WithDescription(description string) Option {
	return func(c *Config) {
		c.Description = description
	}
}

// WithModelName overrides the model of the LLM for the run
func WithModelName(model string) Option {
	return func(c *Config) {
		c.ModelName = model
	}
}

// WithPackage sets the Smithery package
func WithPackage(pkg string) Option {
	return func(c *Config) {
		c.Package = pkg
	}
}

// WithSystemPrompt sets the system prompt template
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

// WithPool sets the pool the agent registers its client in
func WithPool(pool *mcp.Pool) Option {
	return func(c *Config) {
		c.Pool = pool
	}
}

// WithClient uses the client instead of the Smithery one
func WithClient(client *mcp.Client) Option {
	return func(c *Config) {
		c.Client = client
	}
}

// WithSmitheryOptions sets options for the Smithery client
func WithSmitheryOptions(opts ...mcp.SmitheryOption) Option {
	return func(c *Config) {
		c.SmitheryOptions = append(c.SmitheryOptions, opts...)
	}
}

// WithCallback sets the callback for agent, LLM and tool events
func WithCallback(cb agents.Callback) Option {
	return func(c *Config) {
		c.Callback = cb
	}
}

// WithTools adds local tools offered to the model next to the MCP tools
func WithTools(list ...tools.ITool) Option {
	return func(c *Config) {
		c.Tools = append(c.Tools, list...)
	}
}
