// Mcpagent is an LLM-backed agent for MCP tool servers.
//
// It speaks JSON-RPC 2.0 over HTTP to an MCP server, discovers the
// server's tool catalog, and runs chat turns where an LLM (OpenAI or
// Anthropic) can invoke those tools. Long-running tools can also be
// followed directly over the server's SSE streaming endpoints.
//
// Usage:
//
//	mcpagent chat                Start the interactive agent
//	mcpagent tools               List the server's tool catalog
//	mcpagent health              Probe the MCP server
//	mcpagent stream <tool>       Follow a tool's SSE event stream
//	mcpagent version             Print version and build information
//
// Configuration comes from the environment (LLM_PROVIDER,
// OPENAI_API_KEY, MCP_BASE_URL, ...), an optional .env file, and an
// optional YAML config file discovered automatically.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
