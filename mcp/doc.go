// Package mcp provides MCP clients backed by github.com/metoro-io/mcp-golang
// and a Pool that starts them together and routes tool calls by tool name.
//
// A Client reaches its server either by spawning a stdio subprocess or over
// HTTP, see ServerConfig. FromSmithery builds a client for a package published
// on the Smithery registry.
package mcp
