package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates the configuration without starting the relay.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the printrelay configuration without contacting any endpoint.

This command loads the config file, the .env file and the environment,
expands ${VAR} references and validates all fields. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  printrelay validate -c printrelay.yaml
  printrelay validate --env-file /etc/printrelay/.env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	status := "disabled"
	if cfg.StatusPort > 0 {
		status = fmt.Sprintf("port %d", cfg.StatusPort)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  API:           %s\n", cfg.APIURL)
	fmt.Printf("  Token:         %s\n", cfg.MaskedToken())
	fmt.Printf("  Printer:       %s\n", cfg.PrinterURL)
	fmt.Printf("  Timeout:       %s\n", cfg.APITimeout.Duration())
	fmt.Printf("  Poll interval: %s (max %s, x%g when idle)\n",
		cfg.PollInterval.Duration(), cfg.MaxPollInterval.Duration(), cfg.BackoffMultiplier)
	fmt.Printf("  Status server: %s\n", status)

	return nil
}
