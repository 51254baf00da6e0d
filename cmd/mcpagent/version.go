package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mcpagent/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			if !verbose {
				fmt.Println(buildinfo.String())
				return
			}
			info := buildinfo.Info()
			keys := make([]string, 0, len(info))
			for k := range info {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-12s %s\n", k, info[k])
			}
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print all build metadata")
	return cmd
}
