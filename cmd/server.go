package cmd

import (
	"versionvibe/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the VersionVibe server",
	Long:  `Start the VersionVibe HTTP server, serving the REST API and the realtime websocket endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
