package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mcpagent/internal/sse"
)

func newStreamCmd() *cobra.Command {
	var rawArgs []string

	cmd := &cobra.Command{
		Use:   "stream <tool>",
		Short: "Follow a tool's SSE event stream",
		Long: `Opens the server's SSE endpoint for the named tool and prints
events as they arrive. The stream reconnects automatically on
connection loss, resuming from the last seen event. Interrupt with
Ctrl-C.

Tool arguments are passed as repeated --arg key=value flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}

			toolArgs, err := parseToolArgs(rawArgs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reader := newReader(cfg)
			stream := reader.StreamTool(ctx, args[0], toolArgs, nil)
			defer stream.Close()

			fmt.Printf("Streaming %s from %s (Ctrl-C to stop)\n", args[0], cfg.MCP.BaseURL)

			for ev := range stream.Events() {
				printEvent(ev)
			}

			if err := stream.Err(); err != nil && ctx.Err() == nil {
				return err
			}
			fmt.Printf("Stream finished: %s, %d events\n",
				stream.Context().State(), stream.Context().EventCount())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "tool argument as key=value (repeatable)")
	return cmd
}

// parseToolArgs converts key=value pairs to tool arguments. Values that
// parse as JSON are passed through typed; everything else stays a string.
func parseToolArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			args[key] = typed
		} else {
			args[key] = value
		}
	}
	return args, nil
}

func printEvent(ev sse.Event) {
	prefix := ev.Type
	if ev.ID != "" {
		prefix = fmt.Sprintf("%s #%s", ev.Type, ev.ID)
	}

	switch data := ev.Data.(type) {
	case nil:
		fmt.Printf("[%s]\n", prefix)
	case string:
		fmt.Printf("[%s] %s\n", prefix, data)
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			fmt.Printf("[%s] %v\n", prefix, data)
			return
		}
		fmt.Printf("[%s] %s\n", prefix, encoded)
	}
}
