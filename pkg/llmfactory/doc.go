// Package llmfactory creates LLM models from configuration,
// selecting providers by type, model name or agent name.
package llmfactory
