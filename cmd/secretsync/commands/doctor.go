package commands

import (
	"context"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and the decrypt tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			cfg.Logger.Info("configuration loaded (%d secrets declared)", len(cfg.Definition.Secrets))

			checkDecryptTool(cfg)

			identity, err := rt.clients.CallerIdentity(ctx)
			if err != nil {
				cfg.Logger.Error("AWS credentials not usable: %v", err)
				if hint := dserrors.StoreSuggestion(err); hint != "" {
					cfg.Logger.Warn(hint)
				}
				return err
			}
			cfg.Logger.Info("AWS caller identity: %s", identity)

			return nil
		},
	}

	return cmd
}

func checkDecryptTool(cfg *config.Config) {
	dc := cfg.Definition.Decrypt
	switch dc.Tool {
	case "age":
		cfg.Logger.Info("decrypt tool: built-in age")
	default:
		binary := dc.SOPSBinary
		if binary == "" {
			binary = "sops"
		}
		if path, err := exec.LookPath(binary); err != nil {
			cfg.Logger.Warn("sops binary %q not found on PATH", binary)
		} else {
			cfg.Logger.Info("decrypt tool: %s", path)
		}
	}
}
