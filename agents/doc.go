// Package agents defines the contract of agents that carry out a task
// by asking a language model which tools to call.
package agents
