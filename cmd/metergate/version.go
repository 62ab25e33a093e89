package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metergate/metergate/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("metergate %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
