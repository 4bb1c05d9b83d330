package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/cmd/secretsync/commands"
	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe any decrypted material still sealed in memory on the way out.
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "secretsync",
		Short: "Provision AWS Secrets Manager secrets from encrypted files",
		Long: `secretsync reconciles secrets in AWS Secrets Manager against
encrypted definitions committed to version control. Each run decodes
the desired value, reads the remote state fresh, and applies the
minimal set of store calls to converge the two.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "secretsync.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewApplyCommand(cfg),
		commands.NewDestroyCommand(cfg),
		commands.NewEventCommand(cfg),
		commands.NewDecodeCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewKeysCommand(cfg),
	)

	return rootCmd.Execute()
}
