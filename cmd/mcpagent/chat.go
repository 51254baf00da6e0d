package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mcpagent/internal/agent"
	"mcpagent/internal/config"
	"mcpagent/internal/llm"
	"mcpagent/internal/mcp"
	"mcpagent/internal/tools"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive agent",
		Long: `Connects to the MCP server, discovers its tools, and starts an
interactive chat session. The model can invoke server tools during the
conversation; tool activity and the final response are streamed to the
terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}
}

func runChat(ctx context.Context, cfg *config.Config) error {
	client, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	session := newSession(cfg)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect to MCP server: %w", err)
	}
	defer session.Close()

	registry := tools.NewRegistry(session, slog.Default())
	orch := agent.NewOrchestrator(session, registry, client, slog.Default())

	printBanner(cfg, session)

	cctx := agent.NewConversationContext()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := handleCommand(ctx, input, cfg, session, registry, orch, cctx); quit {
				return nil
			}
			continue
		}

		fmt.Print("Assistant: ")
		start := time.Now()

		err := orch.ChatStream(ctx, input, cctx, func(ev agent.Event) {
			switch ev.Type {
			case agent.EventChunk:
				fmt.Print(ev.Content)
			case agent.EventToolNotification:
				fmt.Printf("\n[%s]\n", ev.Content)
			case agent.EventError:
				fmt.Printf("\n%s\n", ev.Content)
			}
		})
		if err != nil {
			slog.Debug("turn failed", "error", err)
			fmt.Println()
			continue
		}

		fmt.Printf("\n(%.2fs)\n\n", time.Since(start).Seconds())
	}
}

// handleCommand dispatches a /command. Returns true when the session
// should end.
func handleCommand(ctx context.Context, input string, cfg *config.Config, session *mcp.Session, registry *tools.Registry, orch *agent.Orchestrator, cctx *agent.ConversationContext) bool {
	switch strings.ToLower(strings.TrimPrefix(input, "/")) {
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return true

	case "help":
		printHelp()

	case "status":
		printStatus(ctx, cfg, session, orch, cctx)

	case "tools":
		printTools(ctx, registry)

	case "clear":
		cctx.Messages = nil
		cctx.ToolCalls = nil
		cctx.ToolResults = nil
		fmt.Println("Conversation history cleared")

	default:
		fmt.Printf("Unknown command: %s. Type /help for available commands.\n", input)
	}
	return false
}

func printBanner(cfg *config.Config, session *mcp.Session) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("mcpagent - interactive MCP agent")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Provider:   %s\n", cfg.LLM.Provider)
	fmt.Printf("Model:      %s\n", cfg.LLM.Model)
	fmt.Printf("MCP server: %s", cfg.MCP.BaseURL)
	if info := session.ServerInfo(); info.Name != "" {
		fmt.Printf(" (%s %s)", info.Name, info.Version)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	fmt.Println("Type a message to chat, or /help for commands.")
	fmt.Println()
}

func printHelp() {
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  /help      Show this help message")
	fmt.Println("  /status    Show agent status")
	fmt.Println("  /tools     List available MCP tools")
	fmt.Println("  /clear     Clear conversation history")
	fmt.Println("  /exit      Exit the agent")
	fmt.Println()
	fmt.Println("Anything else is sent to the assistant, which may use the")
	fmt.Println("server's tools to answer.")
	fmt.Println()
}

func printStatus(ctx context.Context, cfg *config.Config, session *mcp.Session, orch *agent.Orchestrator, cctx *agent.ConversationContext) {
	stats := orch.Stats(ctx)

	fmt.Println()
	fmt.Printf("LLM:        %s - %s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("Session:    %s\n", session.State())
	fmt.Printf("Tools:      %v available\n", stats["tools_cached"])
	if errMsg, ok := stats["tools_error"]; ok {
		fmt.Printf("Tool error: %v\n", errMsg)
	}
	fmt.Printf("Context:    %d messages\n", len(cctx.Messages))
	if len(cctx.ToolCalls) > 0 {
		fmt.Printf("Tool calls: %d executed\n", len(cctx.ToolCalls))
	}
	fmt.Println()
}

func printTools(ctx context.Context, registry *tools.Registry) {
	catalog, err := registry.Discover(ctx)
	if err != nil {
		fmt.Printf("Error listing tools: %v\n", err)
		return
	}
	if len(catalog) == 0 {
		fmt.Println("No tools available")
		return
	}

	fmt.Printf("\nAvailable tools (%d):\n", len(catalog))
	for _, tool := range catalog {
		fmt.Printf("  %s\n", tool.Name)
		if tool.Description != "" {
			fmt.Printf("    %s\n", tool.Description)
		}
		if props, ok := tool.InputSchema["properties"].(map[string]any); ok && len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Printf("    parameters: %s\n", strings.Join(names, ", "))
		}
	}
	fmt.Println()
}
