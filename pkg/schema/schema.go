package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrUnresolvedRef is returned when a $ref can not be found in $defs
var ErrUnresolvedRef = errors.New("schema: unresolved reference")

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema describes tool parameters derived from a Go type
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters represents the Function parameters definition
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	raw := JSONSchema(t)
	params, err := ToFunctionSchema(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "type %s", t.String())
	}
	s = &Schema{
		RawSchema:  raw,
		Parameters: params,
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s, nil
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// ToFunctionSchema flattens the reflected schema into a function parameters
// object with all references inlined.
func ToFunctionSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	rootID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	root := tSchema
	for name, def := range tSchema.Definitions {
		if name == rootID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:       orDefault(root.Type, "object"),
		Properties: root.Properties,
		Required:   root.Required,
	}
	if res.Properties != nil {
		if err := resolveRefs(res.Properties, defs); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Ref != "" {
			name := strings.TrimPrefix(pair.Value.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.WithMessagef(ErrUnresolvedRef, "%s", pair.Value.Ref)
			}
			pair.Value = def
		}
		child := pair.Value
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs); err != nil {
				return err
			}
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.WithMessagef(ErrUnresolvedRef, "%s", child.Items.Ref)
			}
			child.Items = def
		}
	}
	return nil
}

// JSONSchema returns the reflected json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = true

	// struct names may collide across packages, qualify them with a hash of the package path
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// FromJSON parses a raw JSON schema, as advertised by MCP servers.
// An empty input yields an empty object schema.
func FromJSON(raw []byte) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{}
	if len(strings.TrimSpace(string(raw))) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, s); err != nil {
			return nil, errors.Wrap(err, "schema: invalid JSON schema")
		}
	}
	if s.Type == "" {
		s.Type = "object"
	}
	return s, nil
}

// FromAny creates a json schema from any value that marshals to a schema document.
//
// For example:
//
//	map[string]any{
//		"type": "object",
//		"properties": map[string]any{
//			"query": map[string]any{
//				"type": "string",
//			},
//		},
//	}
func FromAny(t any) (*jsonschema.Schema, error) {
	switch v := t.(type) {
	case nil:
		return FromJSON(nil)
	case *jsonschema.Schema:
		if v == nil {
			return FromJSON(nil)
		}
		return v, nil
	case []byte:
		return FromJSON(v)
	case json.RawMessage:
		return FromJSON(v)
	case string:
		return FromJSON([]byte(v))
	}

	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "schema: failed to marshal")
	}
	return FromJSON(js)
}

// MustFromAny is like FromAny but panics on error.
// Use it only for static schemas.
func MustFromAny(t any) *jsonschema.Schema {
	s, err := FromAny(t)
	if err != nil {
		panic(err)
	}
	return s
}
