package agents

import (
	"context"

	"github.com/effective-security/cerebrum/pkg/llms"
	"github.com/effective-security/cerebrum/tools"
)

//go:generate mockgen -source=agents.go -destination=../mocks/mockagents/agents_mock.gen.go -package mockagents

// Agent runs a natural-language task
type Agent interface {
	// Name returns the agent name
	Name() string
	// Description returns what the agent does
	Description() string
	// Initialize prepares the agent's tools
	Initialize(ctx context.Context) error
	// Run executes the task and returns the result
	Run(ctx context.Context, task string) (string, error)
	// Cleanup releases the agent's tools
	Cleanup(ctx context.Context) error
}

// Callback observes agent runs
type Callback interface {
	tools.Callback

	OnAgentStart(ctx context.Context, agent Agent, task string)
	OnAgentEnd(ctx context.Context, agent Agent, task, result string)
	OnAgentError(ctx context.Context, agent Agent, task string, err error)
	OnLLMCallStart(ctx context.Context, agent Agent, model string, messages []llms.MessageContent)
	OnLLMCallEnd(ctx context.Context, agent Agent, model string, resp *llms.ContentResponse)
}
