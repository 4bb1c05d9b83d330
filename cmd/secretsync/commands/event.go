package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/definition"
	"github.com/vaultfold/secretsync/internal/event"
	"github.com/vaultfold/secretsync/internal/metrics"
	"github.com/vaultfold/secretsync/pkg/lifecycle"
)

func NewEventCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event [file]",
		Short: "Execute one serialized lifecycle event",
		Long: `Event reads a single JSON lifecycle event (kind, properties,
priorIdentity) from the given file or stdin, executes the matching
reconciliation, and prints the resulting identity as JSON. This is the
surface an orchestration layer drives.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readEventInput(args)
			if err != nil {
				return err
			}

			ev, err := event.Parse(raw)
			if err != nil {
				return err
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			metrics.Init()

			dispatcher := event.NewDispatcher(&eventReconciler{cfg: cfg, rt: rt}, cfg.Logger)
			result, err := dispatcher.Handle(ctx, ev)
			if err != nil {
				return err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}

	return cmd
}

func readEventInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// eventReconciler builds a per-definition reconciler lazily, so the
// decrypt capability can pick up the event's own key reference.
type eventReconciler struct {
	cfg *config.Config
	rt  *runtime
}

func (e *eventReconciler) Upsert(ctx context.Context, def *definition.SecretDefinition) (string, error) {
	reconciler, err := e.rt.newReconciler(e.cfg, def)
	if err != nil {
		return "", err
	}
	return reconciler.Upsert(ctx, def)
}

func (e *eventReconciler) Delete(ctx context.Context, name string) (string, error) {
	reconciler, err := e.rt.newReconciler(e.cfg, &definition.SecretDefinition{Name: name, EncryptedSource: "unused"})
	if err != nil {
		return "", err
	}
	return reconciler.Delete(ctx, name)
}

var _ event.Reconciler = (*eventReconciler)(nil)
var _ lifecycle.Handler = (*event.Dispatcher)(nil)
