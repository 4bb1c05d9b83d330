package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/metrics"
)

func NewApplyCommand(cfg *config.Config) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "apply [name]",
		Short: "Reconcile declared secrets into the remote store",
		Long: `Apply decodes the encrypted source of each selected secret and
converges the remote store onto the declared state: value, tags,
resource policy and replica regions. Remote state is read fresh on
every run, so re-running after a failure resumes correctly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide a secret name or --all")
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			metrics.Init()

			if all {
				for i := range cfg.Definition.Secrets {
					def := &cfg.Definition.Secrets[i]
					if err := applyOne(ctx, cfg, rt, def.Name); err != nil {
						return err
					}
				}
				return nil
			}
			return applyOne(ctx, cfg, rt, args[0])
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Apply every declared secret")

	return cmd
}

func applyOne(ctx context.Context, cfg *config.Config, rt *runtime, name string) error {
	def, err := cfg.Find(name)
	if err != nil {
		return err
	}
	reconciler, err := rt.newReconciler(cfg, def)
	if err != nil {
		return err
	}
	identity, err := reconciler.Upsert(ctx, def)
	if err != nil {
		return err
	}
	cfg.Logger.Debug("identity: %s", identity)
	return nil
}
