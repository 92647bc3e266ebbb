package cmd

import (
	"fmt"
	"log"
	"os"

	"versionvibe/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "versionvibe",
	Short: "VersionVibe is a music collaboration service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting VersionVibe server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
