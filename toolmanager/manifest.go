package toolmanager

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFileNames are the manifest file names, in lookup order
var ConfigFileNames = []string{"config.json", "config.yaml", "config.yml"}

// Text is a string that may be written as a list of lines
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.Wrap(err, "expected string or list of strings")
	}
	*t = Text(strings.Join(list, " "))
	return nil
}

func (t *Text) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = Text(strings.Join(list, " "))
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

// Manifest describes a tool package
type Manifest struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description Text   `json:"description,omitempty" yaml:"description,omitempty"`
	// Hint is a one-line usage hint shown to the model
	Hint  string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Meta  Meta   `json:"meta" yaml:"meta"`
	Build Build  `json:"build" yaml:"build"`
	// Parameters is the JSON schema of the tool input
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// MCP is set when the tool is served by an MCP server
	MCP *ServerManifest `json:"mcp,omitempty" yaml:"mcp,omitempty"`
}

type Meta struct {
	Author  string `json:"author,omitempty" yaml:"author,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	License string `json:"license,omitempty" yaml:"license,omitempty"`
}

type Build struct {
	// Entry is the entry file, or `builtin:<name>` for tools compiled in
	Entry  string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
}

// ServerManifest describes how to reach the MCP server of the tool
type ServerManifest struct {
	Command string            `json:"command,omitempty" yaml:"command,omitempty" validate:"required_without_all=URL Smithery"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Smithery is the package name on the Smithery registry
	Smithery string `json:"smithery,omitempty" yaml:"smithery,omitempty"`
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ServerConfig returns the MCP client config, relative commands resolve in dir
func (s *ServerManifest) ServerConfig(dir string) *mcp.ServerConfig {
	cmd := s.Command
	if cmd != "" && dir != "" && (strings.HasPrefix(cmd, "./") || strings.HasPrefix(cmd, "../")) {
		cmd = filepath.Join(dir, cmd)
	}
	return &mcp.ServerConfig{
		Command: cmd,
		Args:    s.Args,
		Env:     s.Env,
		URL:     s.URL,
		Headers: s.Headers,
		Timeout: s.Timeout,
	}
}

var validate = validator.New()

// Validate checks the required fields
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Wrap(err, "invalid tool manifest")
	}
	return nil
}

// ParseManifest decodes and validates the manifest, the format is taken
// from the file name extension.
func ParseManifest(fileName string, data []byte) (*Manifest, error) {
	m := new(Manifest)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", fileName)
		}
	default:
		if err := json.Unmarshal(data, m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", fileName)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
