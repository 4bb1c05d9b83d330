package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/metrics"
	"github.com/vaultfold/secretsync/internal/reconcile"
)

func NewDestroyCommand(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Permanently delete a secret from the remote store",
		Long: `Destroy removes the secret's replica regions, then issues a
permanent, non-recoverable delete of the primary. A secret that no
longer exists counts as already deleted and the command succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if !force && !cfg.NonInteractive {
				fmt.Fprintf(os.Stderr, "Permanently delete %q? There is no recovery window. [y/N] ", name)
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				if strings.ToLower(strings.TrimSpace(answer)) != "y" {
					cfg.Logger.Info("aborted")
					return nil
				}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			metrics.Init()

			reconciler := reconcile.New(rt.clients.SecretsManager, nil, reconcile.WithLogger(cfg.Logger))
			_, err = reconciler.Delete(ctx, name)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}
