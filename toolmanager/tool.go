package toolmanager

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/effective-security/cerebrum/pkg/schema"
	"github.com/effective-security/cerebrum/tools"
)

// BuiltinPrefix marks the entry of tools compiled into the binary
const BuiltinPrefix = "builtin:"

// ErrNoMCPServer is returned when the tool does not declare an MCP server
var ErrNoMCPServer = errors.New("toolmanager: tool does not declare an MCP server")

// Source of a loaded tool
const (
	SourceLocal  = "local"
	SourceCache  = "cache"
	SourceRemote = "remote"
)

// Tool is a loaded tool package
type Tool struct {
	Manifest *Manifest
	// Dir is the folder with the tool files
	Dir string
	// Files are the package files relative to Dir, sorted
	Files  []string
	Source string
}

func (t *Tool) Name() string {
	return t.Manifest.Name
}

// String renders the tool as YAML
func (t *Tool) String() string {
	v := struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description,omitempty"`
		Author      string   `yaml:"author,omitempty"`
		Version     string   `yaml:"version,omitempty"`
		Entry       string   `yaml:"entry,omitempty"`
		MCP         bool     `yaml:"mcp,omitempty"`
		Source      string   `yaml:"source"`
		Dir         string   `yaml:"dir,omitempty"`
		Files       []string `yaml:"files,omitempty"`
	}{
		Name:        t.Manifest.Name,
		Description: string(t.Manifest.Description),
		Author:      t.Manifest.Meta.Author,
		Version:     t.Manifest.Meta.Version,
		Entry:       t.Manifest.Build.Entry,
		MCP:         t.Manifest.MCP != nil,
		Source:      t.Source,
		Dir:         t.Dir,
		Files:       t.Files,
	}
	return llmutils.ToYAML(&v)
}

// Info returns the tool information offered to the model
func (t *Tool) Info() (tools.Info, error) {
	params, err := schema.FromAny(t.Manifest.Parameters)
	if err != nil {
		return tools.Info{}, errors.WithMessagef(err, "tool %q parameters", t.Manifest.Name)
	}
	return tools.Info{
		Name:        t.Manifest.Name,
		Description: string(t.Manifest.Description),
		Hint:        t.Manifest.Hint,
		Parameters:  params,
	}, nil
}

// IsBuiltin returns true if the tool is compiled into the binary
func (t *Tool) IsBuiltin() bool {
	return strings.HasPrefix(t.Manifest.Build.Entry, BuiltinPrefix)
}

// Builtin returns the compiled-in implementation of the tool
func (t *Tool) Builtin() (tools.ITool, error) {
	if !t.IsBuiltin() {
		return nil, errors.Errorf("toolmanager: tool %q is not builtin", t.Manifest.Name)
	}
	return NewBuiltin(strings.TrimPrefix(t.Manifest.Build.Entry, BuiltinPrefix))
}

// MCPClient returns a client for the MCP server declared by the tool,
// so the tool can join a pool.
func (t *Tool) MCPClient(opts ...mcp.ClientOption) (*mcp.Client, error) {
	srv := t.Manifest.MCP
	if srv == nil {
		return nil, errors.WithMessagef(ErrNoMCPServer, "%q", t.Manifest.Name)
	}

	description := string(t.Manifest.Description)
	if t.Manifest.Hint != "" {
		opts = append([]mcp.ClientOption{mcp.WithHint(t.Manifest.Hint)}, opts...)
	}
	if srv.Smithery != "" {
		return mcp.FromSmithery(srv.Smithery, description, mcp.WithSmitheryClientOptions(opts...))
	}
	return mcp.NewClient(description, srv.ServerConfig(t.Dir), opts...)
}
