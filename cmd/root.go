package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/ninep/cmd/gen"
)

// configPath is the optional TOML config file
var configPath string

var RootCmd = &cobra.Command{
	Use:   "ninep",
	Short: "Serve and browse JSON documents over 9P2000",
	Long: `Serve and browse JSON documents over 9P2000

The server exports a JSON document as a file tree: objects and arrays are
directories, everything else is a file holding the value's text.

Usage
	ninep serve --seed doc.json
	ninep ls /
	ninep cat /config/name
	echo value | ninep put /config/name

`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(LsCmd)
	RootCmd.AddCommand(CatCmd)
	RootCmd.AddCommand(PutCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
