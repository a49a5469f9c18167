package toolmanager

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/cerebrum/tools/tavily"
)

// BuiltinFactory creates a compiled-in tool
type BuiltinFactory func() (tools.ITool, error)

var builtins = map[string]BuiltinFactory{
	tavily.ToolName: func() (tools.ITool, error) {
		return tavily.New("")
	},
}

// Builtins returns the names of compiled-in tools, sorted
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBuiltin creates the compiled-in tool by name
func NewBuiltin(name string) (tools.ITool, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, errors.WithMessagef(ErrToolNotFound, "builtin %q", name)
	}
	return f()
}
