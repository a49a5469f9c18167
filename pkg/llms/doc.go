// Package llms provides the provider-neutral tool-call API used by agents:
// chat messages, tool definitions, tool calls requested by a model and the
// options passed on each call.
//
// Provider adapters live in the sub-packages and implement the Model interface.
package llms
