package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/cerebrum/agents"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ agents.Callback = (*Noop)(nil)
	_ tools.Callback  = (*Noop)(nil)
	_ agents.Callback = (*Printer)(nil)
	_ agents.Callback = (*PackageLogger)(nil)
	_ agents.Callback = (*Fanout)(nil)
	_ agents.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agents.Callback
}

func NewFanout(callbacks ...agents.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agents.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAgentStart(ctx context.Context, agent agents.Agent, task string) {
	for _, callback := range l.callbacks {
		callback.OnAgentStart(ctx, agent, task)
	}
}

func (l *Fanout) OnAgentEnd(ctx context.Context, agent agents.Agent, task, result string) {
	for _, callback := range l.callbacks {
		callback.OnAgentEnd(ctx, agent, task, result)
	}
}

func (l *Fanout) OnAgentError(ctx context.Context, agent agents.Agent, task string, err error) {
	for _, callback := range l.callbacks {
		callback.OnAgentError(ctx, agent, task, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, agent agents.Agent, model string, messages []llms.MessageContent) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, agent, model, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, agent agents.Agent, model string, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, agent, model, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, client, tool string, args map[string]any) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, client, tool, args)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, client, tool, result string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, client, tool, result)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, client, tool string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, client, tool, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAgentStart(ctx context.Context, agent agents.Agent, task string)            {}
func (l *Noop) OnAgentEnd(ctx context.Context, agent agents.Agent, task, result string)      {}
func (l *Noop) OnAgentError(ctx context.Context, agent agents.Agent, task string, err error) {}
func (l *Noop) OnToolStart(ctx context.Context, client, tool string, args map[string]any)    {}
func (l *Noop) OnToolEnd(ctx context.Context, client, tool, result string)                   {}
func (l *Noop) OnToolError(ctx context.Context, client, tool string, err error)              {}
func (l *Noop) OnLLMCallEnd(ctx context.Context, agent agents.Agent, model string, resp *llms.ContentResponse) {
}
func (l *Noop) OnLLMCallStart(ctx context.Context, agent agents.Agent, model string, messages []llms.MessageContent) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAgentStart(ctx context.Context, agent agents.Agent, task string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent Start: %s\n", agent.Name())
	fmt.Fprintf(l.Out, "Task: %s\n", task)
}

func (l *Printer) OnAgentEnd(ctx context.Context, agent agents.Agent, task, result string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent End: %s\n", agent.Name())
	if l.Mode == ModeVerbose && result != "" {
		fmt.Fprintln(l.Out, result)
	}
}

func (l *Printer) OnAgentError(ctx context.Context, agent agents.Agent, task string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Agent Error: %s: %s\n", agent.Name(), err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, agent agents.Agent, model string, messages []llms.MessageContent) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", agent.Name(), model, len(messages))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessageContents(l.Out, messages)
	}
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, agent agents.Agent, model string, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	in, out, total := llmutils.CountTokens(resp)
	fmt.Fprintf(l.Out, "LLM Call End: %s: %s model, %d tool calls, tokens %d/%d/%d\n",
		agent.Name(), model, len(resp.ToolCalls()), in, out, total)
}

func (l *Printer) OnToolStart(ctx context.Context, client, tool string, args map[string]any) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", tool, client)
	fmt.Fprintf(l.Out, "Args: %s\n", llmutils.ToJSON(args))
}

func (l *Printer) OnToolEnd(ctx context.Context, client, tool, result string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", tool, client)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", result)
	}
}

func (l *Printer) OnToolError(ctx context.Context, client, tool string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", tool, client, err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAgentStart(ctx context.Context, agent agents.Agent, task string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_start",
		"agent", agent.Name(),
		"task", task,
	)
}

func (l *PackageLogger) OnAgentEnd(ctx context.Context, agent agents.Agent, task, result string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_end",
		"agent", agent.Name(),
		"result_size", len(result),
	)
}

func (l *PackageLogger) OnAgentError(ctx context.Context, agent agents.Agent, task string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "agent_error",
		"agent", agent.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, agent agents.Agent, model string, messages []llms.MessageContent) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"agent", agent.Name(),
		"model", model,
		"messages", len(messages),
		"bytes", llmutils.CountMessagesContentSize(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, agent agents.Agent, model string, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"agent", agent.Name(),
		"model", model,
		"tool_calls", len(resp.ToolCalls()),
		"input_tokens", in,
		"output_tokens", out,
		"total_tokens", total,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, client, tool string, args map[string]any) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"client", client,
		"tool", tool,
		"args", args,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, client, tool, result string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"client", client,
		"tool", tool,
		"output", result,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, client, tool string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"client", client,
		"tool", tool,
		"err", err.Error(),
	)
}
