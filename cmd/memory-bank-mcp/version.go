package main

import (
	"fmt"

	"github.com/spf13/cobra"

	mbserver "github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/server"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memory-bank-mcp %s\n", mbserver.Version)
		},
	}
}
