// Package prompts renders text templates used as system prompts.
// Templates have access to the sprig function map.
package prompts

import (
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
)

var (
	cache   = map[string]*template.Template{}
	cacheMu sync.Mutex
)

// Parse parses the template text, caching the result by text
func Parse(text string) (*template.Template, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if t, ok := cache[text]; ok {
		return t, nil
	}
	t, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse prompt template")
	}
	cache[text] = t
	return t, nil
}

// Render executes the template text with data
func Render(text string, data any) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err = t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render prompt template")
	}
	return buf.String(), nil
}

// SystemMessage renders the template into a system message.
// Empty output yields no message.
func SystemMessage(text string, data any) ([]llms.MessageContent, error) {
	s, err := Render(text, data)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return []llms.MessageContent{llms.MessageFromTextParts(llms.ChatMessageTypeSystem, s)}, nil
}
