package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the MCP server's tool catalog",
		Long: `Fetches the tool catalog from the server's GET /tools endpoint.
This does not perform the JSON-RPC handshake; it is a quick inspection
of what the server offers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}

			transport := newTransport(cfg)
			catalog, err := transport.Tools(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(catalog)
			}

			if len(catalog) == 0 {
				fmt.Println("No tools available")
				return nil
			}
			fmt.Printf("%d tools at %s:\n", len(catalog), cfg.MCP.BaseURL)
			for _, tool := range catalog {
				fmt.Printf("  %-24s %s\n", tool.Name, tool.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output the catalog as JSON")
	return cmd
}
