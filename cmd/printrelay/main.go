// Package main is the entry point for the printrelay CLI.
//
// Usage:
//
//	printrelay run -c printrelay.yaml      # Start relaying print jobs
//	printrelay validate -c printrelay.yaml # Validate configuration
//	printrelay probe                       # Check the job API and printer once
//	printrelay version                     # Show version info
//
// Without -c, settings come from the environment and an optional .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "printrelay",
	Short: "Relay print jobs from a web API to a network printer",
	Long: `printrelay polls a job API for pending print documents and posts
them to a network printer.

The API is called with a shared-secret token and answers with base64
encoded XML. Idle polls back off exponentially; a poll that finds a job
resets the interval.

Quick start:
  1. Set API_URL, API_TOKEN and PRINTER_URL (or write printrelay.yaml)
  2. Run: printrelay probe
  3. Run: printrelay run

Example config:
  api_url: https://shop.example.com/api/printData
  api_token: ${PRINT_TOKEN}
  printer_url: https://192.168.1.50:9100
  poll_interval: 5s
  max_poll_interval: 30s`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this printrelay binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("printrelay %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "path to a .env file, ignored if missing")

	rootCmd.AddCommand(versionCmd)
}
