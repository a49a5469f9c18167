package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/cerebrum/agents"
	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/pkg/llmutils"
	"github.com/google/uuid"
)

var TimeNowFn = time.Now

type contextKey struct{}

// RunID returns the run ID carried by the context, or empty string.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// WithRunID returns a context carrying the run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

type RunStats struct {
	RunID string

	Duration            time.Duration
	TotalMessages       uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	LLMTotalTokens      uint64
	AgentRuns           uint32
	AgentRunsSucceeded  uint32
	AgentRunsFailed     uint32
	LLMCalls            uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
}

// Scratchpad collects a transcript and stats per run.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun registers a new run and returns the context carrying its ID.
// If the context already carries a run ID, it is reused.
func (l *Scratchpad) StartRun(ctx context.Context) context.Context {
	id := RunID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = WithRunID(ctx, id)
	}

	r := &run{
		stats:   RunStats{RunID: id},
		started: TimeNowFn(),
	}

	l.lock.Lock()
	l.runs[id] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
	return ctx
}

// EndRun removes the run and returns its stats and transcript.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	r := l.getRun(ctx)
	if r == nil {
		return nil, nil
	}

	stats := r.snapshot()
	stats.Duration = TimeNowFn().Sub(r.started)

	r.print(fmt.Sprintf("Agent runs: %d, Failed: %d",
		stats.AgentRuns,
		stats.AgentRunsFailed,
	))
	r.print(fmt.Sprintf("Tool calls: %d, Failed: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
	))
	r.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))
	r.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, stats.RunID)
	l.lock.Unlock()

	return &stats, r.bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	id := RunID(ctx)
	if id == "" {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[id]
}

func (l *Scratchpad) OnAgentStart(ctx context.Context, agent agents.Agent, task string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AgentRuns, 1)
	r.print(agent.Name(), "*** Agent Start ***")
	r.print(agent.Name(), "Task:", task)
}

func (l *Scratchpad) OnAgentEnd(ctx context.Context, agent agents.Agent, task, result string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AgentRunsSucceeded, 1)
	if l.mode == ModeVerbose {
		r.print(agent.Name(), "Result:", result)
	}
	r.print(agent.Name(), "*** Agent End ***")
}

func (l *Scratchpad) OnAgentError(ctx context.Context, agent agents.Agent, task string, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AgentRunsFailed, 1)
	r.print(agent.Name(), "*** Error ***", err.Error())
}

func (l *Scratchpad) OnLLMCallStart(ctx context.Context, agent agents.Agent, model string, messages []llms.MessageContent) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}

	atomic.AddUint64(&r.stats.LLMBytesOut, llmutils.CountMessagesContentSize(messages))
	atomic.AddUint32(&r.stats.LLMCalls, 1)
	count := uint32(len(messages))
	atomic.AddUint32(&r.stats.TotalMessages, count)

	r.print(agent.Name(), "*** LLM Call ***", fmt.Sprintf("%s model, %d messages", model, count))
	if l.mode == ModeVerbose {
		var buf bytes.Buffer
		llmutils.PrintMessageContents(&buf, messages)
		r.print(agent.Name(), buf.String())
	}
}

func (l *Scratchpad) OnLLMCallEnd(ctx context.Context, agent agents.Agent, model string, resp *llms.ContentResponse) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}

	atomic.AddUint64(&r.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	atomic.AddUint64(&r.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&r.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&r.stats.LLMTotalTokens, uint64(tokensTotal))

	r.print(agent.Name(), "*** LLM Call End ***",
		fmt.Sprintf("%s model, %d tool calls, %d input tokens, %d output tokens, %d total tokens",
			model, len(resp.ToolCalls()), tokensIn, tokensOut, tokensTotal))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, client, tool string, args map[string]any) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCalls, 1)
	r.print(client, tool, "*** Tool Start ***")
	r.print(client, tool, "Args:", llmutils.ToJSON(args))
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, client, tool, result string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		r.print(client, tool, "Output:", result)
	}
	r.print(client, tool, "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, client, tool string, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsFailed, 1)
	r.print(client, tool, "*** Tool Error ***", err.Error())
}

type run struct {
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

func (r *run) snapshot() RunStats {
	return RunStats{
		RunID:               r.stats.RunID,
		TotalMessages:       atomic.LoadUint32(&r.stats.TotalMessages),
		LLMBytesOut:         atomic.LoadUint64(&r.stats.LLMBytesOut),
		LLMBytesIn:          atomic.LoadUint64(&r.stats.LLMBytesIn),
		LLMInputTokens:      atomic.LoadUint64(&r.stats.LLMInputTokens),
		LLMOutputTokens:     atomic.LoadUint64(&r.stats.LLMOutputTokens),
		LLMTotalTokens:      atomic.LoadUint64(&r.stats.LLMTotalTokens),
		AgentRuns:           atomic.LoadUint32(&r.stats.AgentRuns),
		AgentRunsSucceeded:  atomic.LoadUint32(&r.stats.AgentRunsSucceeded),
		AgentRunsFailed:     atomic.LoadUint32(&r.stats.AgentRunsFailed),
		LLMCalls:            atomic.LoadUint32(&r.stats.LLMCalls),
		ToolsCalls:          atomic.LoadUint32(&r.stats.ToolsCalls),
		ToolsCallsSucceeded: atomic.LoadUint32(&r.stats.ToolsCallsSucceeded),
		ToolsCallsFailed:    atomic.LoadUint32(&r.stats.ToolsCallsFailed),
	}
}

func (r *run) bytes() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}

// print writes the entries to the run's output in the format:
// [timestamp runID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ts := TimeNowFn().Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.stats.RunID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
