package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "roomtalk-cli",
	Short: "Roomtalk CLI tool",
	Long: `Roomtalk CLI drives a running roomtalk instance over its HTTP API.

Available commands:
  join       Join a room on the running instance
  send       Send a text message into the joined room
  history    Print the joined room's timeline

Use "roomtalk-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the roomtalk instance")
}
