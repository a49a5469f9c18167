package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMToolCallsRequested = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_tool_calls_requested",
		Help:         "stats_llm_tool_calls_requested provides total tool calls requested by LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsAgentRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_succeeded",
		Help:         "stats_agent_runs_succeeded provides total agent runs succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsAgentRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_failed",
		Help:         "stats_agent_runs_failed provides total agent runs failed",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"client", "tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"client", "tool"},
	}

	// StatsToolCallsNotFound counts calls for tools that no pool client exposes
	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsMCPClientStarted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_client_started",
		Help:         "stats_mcp_client_started provides total MCP clients started",
		RequiredTags: []string{"client"},
	}

	StatsMCPClientStartFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_client_start_failed",
		Help:         "stats_mcp_client_start_failed provides total MCP clients failed to start",
		RequiredTags: []string{"client"},
	}

	StatsToolLoaded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_loaded",
		Help:         "stats_tool_loaded provides total tools loaded from registry",
		RequiredTags: []string{"source"},
	}

	StatsToolLoadFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_load_failed",
		Help:         "stats_tool_load_failed provides total tools failed to load from registry",
		RequiredTags: []string{"source"},
	}
)

// Perf
var (
	PerfAgentRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_agent_run",
		Help:         "perf_agent_run provides duration of agent run",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"agent", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"client", "tool"},
	}

	PerfMCPClientStart = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_client_start",
		Help:         "perf_mcp_client_start provides duration of MCP client start",
		RequiredTags: []string{"client"},
	}

	PerfToolLoad = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_load",
		Help:         "perf_tool_load provides duration of tool load from registry",
		RequiredTags: []string{"source"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAgentRun,
	&PerfLLMCall,
	&PerfMCPClientStart,
	&PerfToolCall,
	&PerfToolLoad,
	&StatsAgentRunsFailed,
	&StatsAgentRunsSucceeded,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMToolCallsRequested,
	&StatsLLMTotalTokens,
	&StatsMCPClientStartFailed,
	&StatsMCPClientStarted,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsToolLoadFailed,
	&StatsToolLoaded,
}
