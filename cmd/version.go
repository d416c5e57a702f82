package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ninep/internal/meta"
	"github.com/luma/ninep/protocol"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, info)
		fmt.Fprintf(out, "protocol: %s\n", protocol.Version)
		if info.BuildTime != "" {
			fmt.Fprintf(out, "built:    %s\n", info.BuildTime)
		}
		fmt.Fprintf(out, "go:       %s %s\n", info.GoVersion, info.GoTag)
	},
}
