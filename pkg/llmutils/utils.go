package llmutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/x/values"
	"gopkg.in/yaml.v3"
)

// CleanJSON returns JSON by trimming prefixes and postfixes,
// as LLM can reply like `Here you go: {json}`
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	switch {
	case startObject == -1 && startArray == -1:
		return bs
	case startObject == -1:
		return bs[startArray:]
	case startArray == -1:
		return bs[startObject:]
	default:
		return bs[min(startObject, startArray):]
	}
}

func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	if endObject == -1 && endArray == -1 {
		return bs
	}
	return bs[:max(endObject, endArray)+1]
}

// TrimBackticks removes ```json or ``` fences
func TrimBackticks(text string) string {
	bs := []byte(text)
	start := bytes.Index(bs, backtick)
	if start == -1 {
		return text
	}
	start += len(backtick)
	// skip the language tag
	for i := start; i < len(bs) && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			start = i + 1
			break
		}
	}
	content := bs[start:]
	end := bytes.LastIndex(content, backtick)
	if end == -1 {
		return string(content)
	}
	return string(bytes.TrimSpace(content[:end]))
}

var backtick = []byte("```")

// ParseArguments decodes tool call arguments produced by a model.
// Empty arguments decode to an empty map; fenced or prefixed JSON is cleaned first.
func ParseArguments(args string) (map[string]any, error) {
	res := map[string]any{}
	args = strings.TrimSpace(args)
	if args == "" || args == "null" {
		return res, nil
	}
	if err := json.Unmarshal([]byte(args), &res); err == nil {
		return res, nil
	}
	cleaned := CleanJSON([]byte(TrimBackticks(args)))
	if err := json.Unmarshal(cleaned, &res); err != nil {
		return nil, errors.Wrapf(err, "invalid tool arguments")
	}
	return res, nil
}

func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

// PrintMessageContents is a debugging helper for MessageContent.
func PrintMessageContents(w io.Writer, msgs []llms.MessageContent) {
	for _, mc := range msgs {
		fmt.Fprintf(w, "%s: ", strings.ToUpper(string(mc.Role)))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				fmt.Fprintln(w, pp.Text)
			case llms.ToolCall:
				fmt.Fprintln(w, pp.String())
			case llms.ToolCallResponse:
				fmt.Fprintf(w, "ToolCallResponse ID=%s, Name=%s, Content=%s\n", pp.ToolCallID, pp.Name, pp.Content)
			}
		}
	}
}

// CountMessagesContentSize counts the size of the content in the messages
func CountMessagesContentSize(msgs []llms.MessageContent) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += uint64(len(pp.Text))
			case llms.ToolCall:
				size += toolCallSize(pp)
			case llms.ToolCallResponse:
				size += uint64(len(pp.ToolCallID) + len(pp.Name) + len(pp.Content))
			}
		}
	}
	return size
}

// CountResponseContentSize counts the size of the content in the content response
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	if resp == nil {
		return 0
	}
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content))
		for _, tc := range choice.ToolCalls {
			size += toolCallSize(tc)
		}
	}
	return size
}

func toolCallSize(tc llms.ToolCall) uint64 {
	size := uint64(len(tc.ID) + len(tc.Type))
	if tc.FunctionCall != nil {
		size += uint64(len(tc.FunctionCall.Name) + len(tc.FunctionCall.Arguments))
	}
	return size
}

// CountTokens sums token usage reported in GenerationInfo
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	if resp == nil {
		return
	}
	for _, choice := range resp.Choices {
		ma := values.MapAny(choice.GenerationInfo)
		in += ma.Int64("InputTokens")
		out += ma.Int64("OutputTokens")
		total += ma.Int64("TotalTokens")
	}
	return
}
