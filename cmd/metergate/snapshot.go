package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	var badge bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the current usage snapshot and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var out any
			if badge {
				out, err = a.usage.Badge(ctx)
			} else {
				out, err = a.usage.Snapshot(ctx)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&badge, "badge", false, "print the badge view instead of the full snapshot")
	return cmd
}
