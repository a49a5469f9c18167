package codeexecutor

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cerebrum/agents"
	"github.com/effective-security/cerebrum/mcp"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/effective-security/cerebrum/pkg/metricskey"
	"github.com/effective-security/cerebrum/pkg/prompts"
	"github.com/effective-security/cerebrum/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "codeexecutor")

// LocalClient is the client name reported for local tools
const LocalClient = "local"

// ErrFunctionCallingNotSupported is returned when the model cannot call tools
var ErrFunctionCallingNotSupported = errors.New("the LLM does not support function calling")

var _ agents.Agent = (*CodeExecutor)(nil)

// CodeExecutor selects tools of a code-execution MCP server with one model
// call and runs them in order.
type CodeExecutor struct {
	cfg   Config
	llm   llms.Model
	pool  *mcp.Pool
	local map[string]tools.ITool
}

// New returns the agent, call Initialize before Run
func New(llm llms.Model, opts ...Option) (*CodeExecutor, error) {
	if llm == nil {
		return nil, errors.New("codeexecutor: LLM is required")
	}

	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Name = values.StringsCoalesce(cfg.Name, DefaultName)
	cfg.Description = values.StringsCoalesce(cfg.Description, DefaultDescription)
	cfg.Package = values.StringsCoalesce(cfg.Package, DefaultPackage)

	pool := cfg.Pool
	if pool == nil {
		pool = mcp.NewPool(mcp.WithToolCallback(cfg.Callback))
	}

	local := make(map[string]tools.ITool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if _, ok := local[t.Name()]; ok {
			return nil, errors.Errorf("codeexecutor: duplicate tool %q", t.Name())
		}
		local[t.Name()] = t
	}

	return &CodeExecutor{
		cfg:   cfg,
		llm:   llm,
		pool:  pool,
		local: local,
	}, nil
}

func (e *CodeExecutor) Name() string {
	return e.cfg.Name
}

func (e *CodeExecutor) Description() string {
	return e.cfg.Description
}

// ModelName returns the model requested by the agent, defaults to the
// model the LLM was created with
func (e *CodeExecutor) ModelName() string {
	return values.StringsCoalesce(e.cfg.ModelName, llms.ModelName(e.llm))
}

// Pool returns the MCP pool of the agent
func (e *CodeExecutor) Pool() *mcp.Pool {
	return e.pool
}

// Initialize registers the code-execution client and starts the pool
func (e *CodeExecutor) Initialize(ctx context.Context) error {
	client := e.cfg.Client
	if client == nil {
		var err error
		client, err = mcp.FromSmithery(e.cfg.Package, e.cfg.Description, e.cfg.SmitheryOptions...)
		if err != nil {
			return errors.WithMessagef(err, "failed to create client for %q", e.cfg.Package)
		}
	}

	if err := e.pool.AddClient(e.cfg.Name, client); err != nil {
		return err
	}
	if err := e.pool.Start(ctx); err != nil {
		return err
	}

	logger.ContextKV(ctx, xlog.INFO,
		"agent", e.cfg.Name,
		"status", "initialized",
		"clients", e.pool.Names())
	return nil
}

// ToolInformation returns the tools of the pool followed by the local tools
func (e *CodeExecutor) ToolInformation(ctx context.Context) ([]tools.Info, error) {
	infos, err := e.pool.Tools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range e.cfg.Tools {
		infos = append(infos, tools.InfoFromTool(t, LocalClient))
	}
	return infos, nil
}

// ToolHints renders one hint line per tool
func (e *CodeExecutor) ToolHints(infos []tools.Info) string {
	return tools.Hints(infos)
}

// ToolSchemas returns the function definitions offered to the model
func (e *CodeExecutor) ToolSchemas(infos []tools.Info) []llms.Tool {
	return tools.ToLLMTools(infos)
}

// Run asks the model which tools to call for the task and returns the
// concatenated tool results. Without tool calls the model text is returned.
func (e *CodeExecutor) Run(ctx context.Context, task string) (string, error) {
	started := time.Now()
	defer metricskey.PerfAgentRun.MeasureSince(started, e.cfg.Name)

	cb := e.cfg.Callback
	if cb != nil {
		cb.OnAgentStart(ctx, e, task)
	}

	res, err := e.run(ctx, task)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, e.cfg.Name)
		if cb != nil {
			cb.OnAgentError(ctx, e, task, err)
		}
		return "", err
	}

	metricskey.StatsAgentRunsSucceeded.IncrCounter(1, e.cfg.Name)
	if cb != nil {
		cb.OnAgentEnd(ctx, e, task, res)
	}
	return res, nil
}

func (e *CodeExecutor) run(ctx context.Context, task string) (string, error) {
	infos, err := e.ToolInformation(ctx)
	if err != nil {
		return "", errors.WithMessage(err, "failed to get tool information")
	}

	messages, err := prompts.SystemMessage(e.cfg.SystemPrompt, map[string]any{
		"Task":      task,
		"ToolHints": e.ToolHints(infos),
	})
	if err != nil {
		return "", errors.WithMessage(err, "failed to format system prompt")
	}
	messages = append(messages, llms.MessageFromTextParts(llms.ChatMessageTypeHuman, task))

	var callOpts []llms.CallOption
	if e.cfg.ModelName != "" {
		callOpts = append(callOpts, llms.WithModel(e.cfg.ModelName))
	}
	if len(infos) > 0 {
		if !e.llm.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
			return "", errors.WithStack(ErrFunctionCallingNotSupported)
		}
		callOpts = append(callOpts, llms.WithTools(e.ToolSchemas(infos)))
	}

	resp, err := e.generate(ctx, messages, callOpts)
	if err != nil {
		return "", err
	}

	calls := resp.ToolCalls()
	if len(calls) == 0 {
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", e.cfg.Name,
			"status", "no_tool_calls")
		return resp.Content(), nil
	}

	var result strings.Builder
	for _, tc := range calls {
		if tc.FunctionCall == nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", e.cfg.Name,
				"reason", "no_function",
				"tool_call", tc.ID)
			return "", errors.Errorf("codeexecutor: tool call %q has no function", tc.ID)
		}
		name := tc.FunctionCall.Name
		args, err := llmutils.ParseArguments(tc.FunctionCall.Arguments)
		if err != nil {
			return "", errors.WithMessagef(err, "tool %q", name)
		}

		out, err := e.callTool(ctx, name, args)
		if err != nil {
			return "", errors.WithMessagef(err, "failed to execute tool %q", name)
		}
		result.WriteString(out)
	}
	return result.String(), nil
}

func (e *CodeExecutor) generate(ctx context.Context, messages []llms.MessageContent, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	agentName := e.cfg.Name
	modelName := e.ModelName()

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnLLMCallStart(ctx, e, modelName, messages)
	}

	bytesSent := llmutils.CountMessagesContentSize(messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), agentName, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), agentName, modelName)

	started := time.Now()
	resp, err := e.llm.GenerateContent(ctx, messages, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, agentName, modelName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content from LLM")
	}

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnLLMCallEnd(ctx, e, modelName, resp)
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), agentName, modelName)
	metricskey.StatsLLMToolCallsRequested.IncrCounter(float64(len(resp.ToolCalls())), agentName, modelName)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), agentName, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), agentName, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), agentName, modelName)

	return resp, nil
}

func (e *CodeExecutor) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := e.local[name]
	if !ok {
		return e.pool.CallTool(ctx, name, args)
	}

	cb := e.cfg.Callback
	if cb != nil {
		cb.OnToolStart(ctx, LocalClient, name, args)
	}

	started := time.Now()
	out, err := t.Call(ctx, llmutils.ToJSON(args))
	metricskey.PerfToolCall.MeasureSince(started, LocalClient, name)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, LocalClient, name)
		if cb != nil {
			cb.OnToolError(ctx, LocalClient, name, err)
		}
		return "", err
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, LocalClient, name)
	if cb != nil {
		cb.OnToolEnd(ctx, LocalClient, name, out)
	}
	return out, nil
}

// Cleanup stops the pool
func (e *CodeExecutor) Cleanup(ctx context.Context) error {
	err := e.pool.Stop()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", e.cfg.Name,
			"err", err.Error())
	}
	return err
}
