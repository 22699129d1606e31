package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/tejashwikalptaru/tubetune/internal/app"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and build metadata",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := app.GetVersionInfo()
			if lo.Must(cmd.Flags().GetBool("short")) {
				fmt.Fprintln(cmd.OutOrStdout(), info.Version)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
		},
	}
	cmd.Flags().BoolP("short", "s", false, "Print only the version")
	return cmd
}
