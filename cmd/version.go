package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRun: func(*cobra.Command, []string) {},
	Run: func(*cobra.Command, []string) {
		fmt.Printf("webkvm version %s\n", version)
	},
}
