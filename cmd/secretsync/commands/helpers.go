package commands

import (
	"context"
	"os"

	"filippo.io/age"

	"github.com/vaultfold/secretsync/internal/awsconn"
	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/decode"
	"github.com/vaultfold/secretsync/internal/decrypt"
	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/reconcile"
	"github.com/vaultfold/secretsync/internal/source"
)

// runtime bundles the wired collaborators one command invocation needs.
type runtime struct {
	clients *awsconn.Clients
	blobs   *source.Resolver
}

// newRuntime loads config and builds AWS clients plus the blob source.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	store := cfg.Definition.Store
	clients, err := awsconn.New(ctx, awsconn.Settings{
		Region:          store.Region,
		Endpoint:        store.Endpoint,
		AccessKeyID:     store.AccessKeyID,
		SecretAccessKey: store.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		clients: clients,
		blobs:   source.NewResolver(source.WithSSMClient(clients.SSM)),
	}, nil
}

// newDecrypter builds the decrypt capability for one definition. The
// definition's encryption key reference only ever travels this far;
// the reconciler never sees it.
func newDecrypter(cfg *config.Config, def *definition.SecretDefinition) (decrypt.Decrypter, error) {
	dc := cfg.Definition.Decrypt

	switch dc.Tool {
	case "age":
		var identities []age.Identity
		if dc.UseKeyring {
			ids, err := decrypt.LoadIdentities()
			if err != nil && !dserrors.IsNotFound(err) {
				return nil, err
			}
			identities = append(identities, ids...)
		}
		identityFile := dc.IdentityFile
		if def.EncryptionKeyRef != "" {
			identityFile = def.EncryptionKeyRef
		}
		if identityFile != "" {
			f, err := os.Open(identityFile)
			if err != nil {
				return nil, dserrors.UserError{
					Message:    "Cannot open age identity file",
					Details:    err.Error(),
					Suggestion: "Check decrypt.identityFile in secretsync.yaml",
					Err:        err,
				}
			}
			defer f.Close()
			ids, err := decrypt.ParseIdentities(f)
			if err != nil {
				return nil, err
			}
			identities = append(identities, ids...)
		}
		return decrypt.NewAgeDecrypter(identities), nil

	default: // sops
		return decrypt.NewSOPSTool(dc.SOPSBinary, def.EncryptionKeyRef, cfg.Logger), nil
	}
}

// newReconciler wires a reconciler for one definition.
func (r *runtime) newReconciler(cfg *config.Config, def *definition.SecretDefinition) (*reconcile.Reconciler, error) {
	decrypter, err := newDecrypter(cfg, def)
	if err != nil {
		return nil, err
	}
	decoder := decode.New(r.blobs, decrypter, cfg.Logger)
	return reconcile.New(r.clients.SecretsManager, decoder, reconcile.WithLogger(cfg.Logger)), nil
}
