// Package reconcile drives AWS Secrets Manager to a definition's
// desired state, one lifecycle event at a time.
//
// Every invocation reads remote state fresh and derives its plan from
// that, never from a remembered prior desired state. That is the
// property that makes the routine safe to re-invoke after a partial
// failure: a retried invocation naturally resumes from wherever the
// previous one stopped. The routine performs no retries and no locking
// itself; the invoking layer owns both.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/vaultfold/secretsync/internal/decode"
	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
	"github.com/vaultfold/secretsync/internal/metrics"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the
// reconciler uses. It exists so tests can inject a fake.
type SecretsManagerAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error)
	UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error)
	PutResourcePolicy(ctx context.Context, params *secretsmanager.PutResourcePolicyInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutResourcePolicyOutput, error)
	DeleteResourcePolicy(ctx context.Context, params *secretsmanager.DeleteResourcePolicyInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteResourcePolicyOutput, error)
	ReplicateSecretToRegions(ctx context.Context, params *secretsmanager.ReplicateSecretToRegionsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ReplicateSecretToRegionsOutput, error)
	RemoveRegionsFromReplication(ctx context.Context, params *secretsmanager.RemoveRegionsFromReplicationInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RemoveRegionsFromReplicationOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// remoteState is the secret's observed attributes, read fresh at the
// start of every invocation and discarded at the end.
type remoteState struct {
	exists  bool
	tags    map[string]string
	regions []string
}

// Reconciler converges remote secrets onto desired definitions.
type Reconciler struct {
	client  SecretsManagerAPI
	decoder *decode.Decoder
	logger  *logging.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the progress logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a reconciler over the given store client and decoder.
func New(client SecretsManagerAPI, decoder *decode.Decoder, opts ...Option) *Reconciler {
	r := &Reconciler{client: client, decoder: decoder}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.New(false, true)
	}
	return r
}

// Upsert is the shared Create/Update path. It decodes the payload,
// writes the value, then reconciles tags, resource policy and replica
// regions against freshly read remote state. The returned identity is
// the definition name, the stable correlation key for later events.
func (r *Reconciler) Upsert(ctx context.Context, def *definition.SecretDefinition) (identity string, err error) {
	start := time.Now()
	defer func() { metrics.RecordReconcile("upsert", start, err) }()

	if err = def.Validate(); err != nil {
		return "", err
	}

	// Decryption failure aborts before any remote mutation.
	plaintext, err := r.decoder.Decode(ctx, def)
	if err != nil {
		return "", err
	}
	defer plaintext.Destroy()

	state, err := r.fetchState(ctx, def.Name)
	if err != nil {
		return "", err
	}

	value, err := plaintext.Reveal()
	if err != nil {
		return "", err
	}

	if state.exists {
		err = r.updateValue(ctx, def, value)
	} else {
		err = r.createValue(ctx, def, value)
	}
	if err != nil {
		return "", err
	}

	if err = r.reconcileTags(ctx, def, state); err != nil {
		return "", err
	}
	if err = r.reconcilePolicy(ctx, def); err != nil {
		return "", err
	}
	if err = r.reconcileRegions(ctx, def, state); err != nil {
		return "", err
	}

	r.logger.Info("secret %s reconciled", def.Name)
	return def.Name, nil
}

// Delete permanently removes the secret. A secret that no longer
// exists counts as already deleted and succeeds with no further calls.
// Replica regions are removed first; the store refuses to delete a
// primary that still has active replicas.
func (r *Reconciler) Delete(ctx context.Context, name string) (identity string, err error) {
	start := time.Now()
	defer func() { metrics.RecordReconcile("delete", start, err) }()

	if name == "" {
		return "", dserrors.ValidationError{Field: "name", Message: "must not be empty"}
	}

	state, err := r.fetchState(ctx, name)
	if err != nil {
		return "", err
	}
	if !state.exists {
		r.logger.Debug("secret %s already deleted", name)
		return name, nil
	}

	if len(state.regions) > 0 {
		_, err = r.client.RemoveRegionsFromReplication(ctx, &secretsmanager.RemoveRegionsFromReplicationInput{
			SecretId:             aws.String(name),
			RemoveReplicaRegions: state.regions,
		})
		metrics.RecordRemoteCall("RemoveRegionsFromReplication", err)
		if err != nil {
			return "", dserrors.RemoteError{Operation: "RemoveRegionsFromReplication", Name: name, Err: err}
		}
	}

	_, err = r.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	metrics.RecordRemoteCall("DeleteSecret", err)
	if err != nil {
		// Success is acceptance of the deletion, not physical purge.
		return "", dserrors.RemoteError{Operation: "DeleteSecret", Name: name, Err: err}
	}

	r.logger.Info("secret %s deleted", name)
	return name, nil
}

// fetchState reads the remote secret. Absence is not an error here; it
// denotes a fresh create (or an already-completed delete).
func (r *Reconciler) fetchState(ctx context.Context, name string) (remoteState, error) {
	out, err := r.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	metrics.RecordRemoteCall("DescribeSecret", err)
	if err != nil {
		if isResourceNotFound(err) {
			return remoteState{exists: false}, nil
		}
		return remoteState{}, dserrors.RemoteError{Operation: "DescribeSecret", Name: name, Err: err}
	}

	state := remoteState{exists: true, tags: make(map[string]string, len(out.Tags))}
	for _, tag := range out.Tags {
		state.tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	for _, replica := range out.ReplicationStatus {
		if replica.Region != nil {
			state.regions = append(state.regions, *replica.Region)
		}
	}
	return state, nil
}

func (r *Reconciler) createValue(ctx context.Context, def *definition.SecretDefinition, value string) error {
	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(def.Name),
		SecretString: aws.String(value),
	}
	if def.Description != "" {
		input.Description = aws.String(def.Description)
	}
	if def.StorageKeyRef != "" {
		input.KmsKeyId = aws.String(def.StorageKeyRef)
	}
	_, err := r.client.CreateSecret(ctx, input)
	metrics.RecordRemoteCall("CreateSecret", err)
	if err != nil {
		return dserrors.RemoteError{Operation: "CreateSecret", Name: def.Name, Err: err}
	}
	r.logger.Debug("created secret %s", def.Name)
	return nil
}

func (r *Reconciler) updateValue(ctx context.Context, def *definition.SecretDefinition, value string) error {
	input := &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(def.Name),
		SecretString: aws.String(value),
	}
	if def.Description != "" {
		input.Description = aws.String(def.Description)
	}
	if def.StorageKeyRef != "" {
		input.KmsKeyId = aws.String(def.StorageKeyRef)
	}
	_, err := r.client.UpdateSecret(ctx, input)
	metrics.RecordRemoteCall("UpdateSecret", err)
	if err != nil {
		return dserrors.RemoteError{Operation: "UpdateSecret", Name: def.Name, Err: err}
	}
	r.logger.Debug("updated secret %s", def.Name)
	return nil
}

// reconcileTags removes the complement (existing keys not desired) and
// re-applies the desired set wholesale. Removal precedes addition so a
// renamed tag never transiently coexists with its stale predecessor.
func (r *Reconciler) reconcileTags(ctx context.Context, def *definition.SecretDefinition, state remoteState) error {
	var toRemove []string
	for key := range state.tags {
		if _, keep := def.Tags[key]; !keep {
			toRemove = append(toRemove, key)
		}
	}
	sort.Strings(toRemove)

	if len(toRemove) > 0 {
		_, err := r.client.UntagResource(ctx, &secretsmanager.UntagResourceInput{
			SecretId: aws.String(def.Name),
			TagKeys:  toRemove,
		})
		metrics.RecordRemoteCall("UntagResource", err)
		if err != nil {
			return dserrors.RemoteError{Operation: "UntagResource", Name: def.Name, Err: err}
		}
	}

	if len(def.Tags) > 0 {
		keys := make([]string, 0, len(def.Tags))
		for key := range def.Tags {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		tags := make([]types.Tag, 0, len(keys))
		for _, key := range keys {
			tags = append(tags, types.Tag{
				Key:   aws.String(key),
				Value: aws.String(def.Tags[key]),
			})
		}
		_, err := r.client.TagResource(ctx, &secretsmanager.TagResourceInput{
			SecretId: aws.String(def.Name),
			Tags:     tags,
		})
		metrics.RecordRemoteCall("TagResource", err)
		if err != nil {
			return dserrors.RemoteError{Operation: "TagResource", Name: def.Name, Err: err}
		}
	}
	return nil
}

// reconcilePolicy sets or clears the resource policy unconditionally.
// Existing policy text is never read back or diffed. Clearing a secret
// that has no policy attached is success, not failure.
func (r *Reconciler) reconcilePolicy(ctx context.Context, def *definition.SecretDefinition) error {
	if def.ResourcePolicy != "" {
		_, err := r.client.PutResourcePolicy(ctx, &secretsmanager.PutResourcePolicyInput{
			SecretId:       aws.String(def.Name),
			ResourcePolicy: aws.String(def.ResourcePolicy),
		})
		metrics.RecordRemoteCall("PutResourcePolicy", err)
		if err != nil {
			return dserrors.RemoteError{Operation: "PutResourcePolicy", Name: def.Name, Err: err}
		}
		return nil
	}

	_, err := r.client.DeleteResourcePolicy(ctx, &secretsmanager.DeleteResourcePolicyInput{
		SecretId: aws.String(def.Name),
	})
	metrics.RecordRemoteCall("DeleteResourcePolicy", err)
	if err != nil && !isResourceNotFound(err) {
		return dserrors.RemoteError{Operation: "DeleteResourcePolicy", Name: def.Name, Err: err}
	}
	return nil
}

// reconcileRegions removes stale replica regions first, then adds the
// desired set. The store treats re-adding a present region as a no-op,
// so addition does not bother filtering out existing regions; the diff
// that matters is the removal side, computed by region name only.
func (r *Reconciler) reconcileRegions(ctx context.Context, def *definition.SecretDefinition, state remoteState) error {
	desired := make(map[string]struct{}, len(def.ReplicaRegions))
	for _, region := range def.RegionNames() {
		desired[region] = struct{}{}
	}

	var toRemove []string
	for _, region := range state.regions {
		if _, keep := desired[region]; !keep {
			toRemove = append(toRemove, region)
		}
	}
	sort.Strings(toRemove)

	if len(toRemove) > 0 {
		_, err := r.client.RemoveRegionsFromReplication(ctx, &secretsmanager.RemoveRegionsFromReplicationInput{
			SecretId:             aws.String(def.Name),
			RemoveReplicaRegions: toRemove,
		})
		metrics.RecordRemoteCall("RemoveRegionsFromReplication", err)
		if err != nil {
			return dserrors.RemoteError{Operation: "RemoveRegionsFromReplication", Name: def.Name, Err: err}
		}
	}

	if len(def.ReplicaRegions) > 0 {
		replicas := make([]types.ReplicaRegionType, 0, len(def.ReplicaRegions))
		for _, replica := range def.ReplicaRegions {
			entry := types.ReplicaRegionType{Region: aws.String(replica.Region)}
			if replica.KMSKeyID != "" {
				entry.KmsKeyId = aws.String(replica.KMSKeyID)
			}
			replicas = append(replicas, entry)
		}
		_, err := r.client.ReplicateSecretToRegions(ctx, &secretsmanager.ReplicateSecretToRegionsInput{
			SecretId:          aws.String(def.Name),
			AddReplicaRegions: replicas,
		})
		metrics.RecordRemoteCall("ReplicateSecretToRegions", err)
		if err != nil {
			return dserrors.RemoteError{Operation: "ReplicateSecretToRegions", Name: def.Name, Err: err}
		}
	}
	return nil
}

func isResourceNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
