// Package tools defines the tool abstraction shared by agents, MCP clients and
// the tool manager, and converts tool information into LLM tool definitions.
package tools
