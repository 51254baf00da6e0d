package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}

			transport := newTransport(cfg)
			health, err := transport.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("server at %s is unreachable: %w", cfg.MCP.BaseURL, err)
			}

			fmt.Printf("Server at %s is healthy\n", cfg.MCP.BaseURL)
			keys := make([]string, 0, len(health))
			for k := range health {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s: %v\n", k, health[k])
			}
			return nil
		},
	}
}
