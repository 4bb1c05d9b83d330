package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/decrypt"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
)

func NewKeysCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the age identity stored in the OS keyring",
	}

	cmd.AddCommand(
		newKeysImportCommand(cfg),
		newKeysShowCommand(cfg),
		newKeysRemoveCommand(cfg),
	)

	return cmd
}

func newKeysImportCommand(cfg *config.Config) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store an age identity in the OS keyring",
		Long: `Import reads an age identity (AGE-SECRET-KEY-1...) from --file or
stdin and stores it in the OS keyring, so the private key never has to
live in the working tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var identity string
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return err
				}
				identity = string(data)
			} else {
				if !cfg.NonInteractive {
					fmt.Fprint(os.Stderr, "Paste age identity: ")
				}
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return err
				}
				identity = line
			}

			cfg.Logger.Debug("importing identity %s", logging.Secret(identity))
			if err := decrypt.StoreIdentity(strings.TrimSpace(identity)); err != nil {
				return err
			}
			cfg.Logger.Info("age identity stored in OS keyring")
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "file", "", "Read the identity from a file")

	return cmd
}

func newKeysShowCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the public recipients of the stored identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipients, err := decrypt.IdentityRecipients()
			if err != nil {
				if dserrors.IsNotFound(err) {
					cfg.Logger.Warn("no age identity stored")
					return nil
				}
				return err
			}
			// Only the public half is printed; the secret key stays put.
			for _, r := range recipients {
				fmt.Fprintln(os.Stdout, r)
			}
			return nil
		},
	}
}

func newKeysRemoveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm",
		Short: "Remove the stored identity from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := decrypt.DeleteIdentity(); err != nil {
				return err
			}
			cfg.Logger.Info("age identity removed")
			return nil
		},
	}
}
