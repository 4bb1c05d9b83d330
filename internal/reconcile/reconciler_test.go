package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultfold/secretsync/internal/decode"
	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
	"github.com/vaultfold/secretsync/internal/reconcile"
	"github.com/vaultfold/secretsync/tests/fakes"
)

const testLocator = "blob://payload"

func newReconciler(client *fakes.FakeSecretsManagerClient, plaintext string) *reconcile.Reconciler {
	src := &fakes.StaticSource{Blobs: map[string][]byte{
		testLocator: []byte("ciphertext"),
	}}
	decrypter := &fakes.FakeDecrypter{Plaintext: []byte(plaintext)}
	decoder := decode.New(src, decrypter, logging.New(false, true))
	return reconcile.New(client, decoder, reconcile.WithLogger(logging.New(false, true)))
}

func testDefinition(mutate func(*definition.SecretDefinition)) *definition.SecretDefinition {
	def := &definition.SecretDefinition{
		Name:            "prod/db-credentials",
		ContentFormat:   definition.FormatText,
		EncryptedSource: testLocator,
	}
	if mutate != nil {
		mutate(def)
	}
	return def
}

func TestUpsertCreatesMissingSecret(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	r := newReconciler(client, "hunter2\n")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.Description = "database credentials"
		d.StorageKeyRef = "alias/secrets-key"
		d.Tags = map[string]string{"env": "prod"}
	})

	identity, err := r.Upsert(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, def.Name, identity)

	record := client.Secrets[def.Name]
	require.NotNil(t, record)
	assert.Equal(t, "hunter2", record.Value, "surrounding whitespace is trimmed before storage")
	assert.Equal(t, "database credentials", record.Description)
	assert.Equal(t, "alias/secrets-key", record.KmsKeyId)
	assert.Equal(t, map[string]string{"env": "prod"}, record.Tags)
}

func TestUpsertUpdatesExistingSecret(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{Value: "old"})
	r := newReconciler(client, "new-value")

	_, err := r.Upsert(context.Background(), testDefinition(nil))
	require.NoError(t, err)

	assert.Equal(t, "new-value", client.Secrets["prod/db-credentials"].Value)
	assert.Contains(t, client.CallNames(), "UpdateSecret")
	assert.NotContains(t, client.CallNames(), "CreateSecret")
}

func TestUpsertReconcilesTagsExactly(t *testing.T) {
	t.Parallel()

	// Remote has {env: staging, team: x}; desired is {env: prod}. After
	// reconciliation the remote set must equal the desired set exactly:
	// team removed, env re-applied with the new value.
	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{
		Value: "old",
		Tags:  map[string]string{"env": "staging", "team": "x"},
	})
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.Tags = map[string]string{"env": "prod"}
	})
	_, err := r.Upsert(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"env": "prod"}, client.Secrets[def.Name].Tags)

	calls := client.CallNames()
	assert.Equal(t, indexOf(calls, "UntagResource")+1, indexOf(calls, "TagResource"),
		"removal must immediately precede re-application")
}

func TestUpsertSecondDesiredSetWinsCompletely(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first map[string]string
		then  map[string]string
	}{
		{
			name:  "disjoint",
			first: map[string]string{"a": "1", "b": "2"},
			then:  map[string]string{"c": "3"},
		},
		{
			name:  "overlapping",
			first: map[string]string{"a": "1", "b": "2"},
			then:  map[string]string{"b": "20", "c": "3"},
		},
		{
			name:  "emptied",
			first: map[string]string{"a": "1"},
			then:  map[string]string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := fakes.NewFakeSecretsManagerClient()
			r := newReconciler(client, "v")

			first := testDefinition(func(d *definition.SecretDefinition) { d.Tags = tt.first })
			_, err := r.Upsert(context.Background(), first)
			require.NoError(t, err)

			second := testDefinition(func(d *definition.SecretDefinition) { d.Tags = tt.then })
			_, err = r.Upsert(context.Background(), second)
			require.NoError(t, err)

			want := tt.then
			if len(want) == 0 {
				want = map[string]string{}
			}
			assert.Equal(t, want, client.Secrets[second.Name].Tags, "no residue from the first tag set")
		})
	}
}

func TestUpsertReconcilesReplicaRegionsExactly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first []string
		then  []string
	}{
		{name: "disjoint", first: []string{"eu-west-1", "eu-central-1"}, then: []string{"ap-south-1"}},
		{name: "overlapping", first: []string{"eu-west-1", "eu-central-1"}, then: []string{"eu-west-1"}},
		{name: "emptied", first: []string{"eu-west-1"}, then: nil},
		{name: "unchanged", first: []string{"eu-west-1"}, then: []string{"eu-west-1"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := fakes.NewFakeSecretsManagerClient()
			r := newReconciler(client, "v")

			regions := func(names []string) []definition.ReplicaRegion {
				var out []definition.ReplicaRegion
				for _, name := range names {
					out = append(out, definition.ReplicaRegion{Region: name})
				}
				return out
			}

			first := testDefinition(func(d *definition.SecretDefinition) { d.ReplicaRegions = regions(tt.first) })
			_, err := r.Upsert(context.Background(), first)
			require.NoError(t, err)

			second := testDefinition(func(d *definition.SecretDefinition) { d.ReplicaRegions = regions(tt.then) })
			_, err = r.Upsert(context.Background(), second)
			require.NoError(t, err)

			assert.ElementsMatch(t, tt.then, client.Secrets[second.Name].Regions,
				"remote region set must equal the second desired set exactly")
		})
	}
}

func TestUpsertRemovesRegionsBeforeAdding(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{
		Value:   "old",
		Regions: []string{"eu-west-1"},
	})
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.ReplicaRegions = []definition.ReplicaRegion{{Region: "ap-south-1"}}
	})
	_, err := r.Upsert(context.Background(), def)
	require.NoError(t, err)

	calls := client.CallNames()
	removeIdx := indexOf(calls, "RemoveRegionsFromReplication")
	addIdx := indexOf(calls, "ReplicateSecretToRegions")
	require.GreaterOrEqual(t, removeIdx, 0)
	require.GreaterOrEqual(t, addIdx, 0)
	assert.Less(t, removeIdx, addIdx, "shrink before grow")
}

func TestUpsertIdempotentOnUnchangedInput(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.Tags = map[string]string{"env": "prod"}
		d.ReplicaRegions = []definition.ReplicaRegion{{Region: "eu-west-1"}}
	})

	_, err := r.Upsert(context.Background(), def)
	require.NoError(t, err)

	tagsAfterFirst := map[string]string{}
	for k, v := range client.Secrets[def.Name].Tags {
		tagsAfterFirst[k] = v
	}
	regionsAfterFirst := append([]string(nil), client.Secrets[def.Name].Regions...)
	client.Calls = nil

	_, err = r.Upsert(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, tagsAfterFirst, client.Secrets[def.Name].Tags)
	assert.Equal(t, regionsAfterFirst, client.Secrets[def.Name].Regions)
	assert.NotContains(t, client.CallNames(), "UntagResource",
		"nothing to remove, so no removal call is issued")
	assert.NotContains(t, client.CallNames(), "RemoveRegionsFromReplication")
}

func TestUpsertSetsResourcePolicyWholesale(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{Value: "old", Policy: `{"old":true}`})
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.ResourcePolicy = `{"Version":"2012-10-17"}`
	})
	_, err := r.Upsert(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, `{"Version":"2012-10-17"}`, client.Secrets[def.Name].Policy)
}

func TestUpsertClearsAbsentPolicyTolerantly(t *testing.T) {
	t.Parallel()

	// Remote has no policy attached; the unconditional clear gets the
	// store's "no policy found" response, which counts as success.
	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{Value: "old"})
	r := newReconciler(client, "v")

	_, err := r.Upsert(context.Background(), testDefinition(nil))
	require.NoError(t, err)
	assert.Contains(t, client.CallNames(), "DeleteResourcePolicy")
}

func TestUpsertAbortsBeforeRemoteOnDecryptFailure(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	src := &fakes.StaticSource{Blobs: map[string][]byte{testLocator: []byte("ct")}}
	decrypter := &fakes.FakeDecrypter{Err: dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: errors.New("mac mismatch")}}
	decoder := decode.New(src, decrypter, logging.New(false, true))
	r := reconcile.New(client, decoder)

	_, err := r.Upsert(context.Background(), testDefinition(nil))

	var de dserrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dserrors.DecryptFailure, de.Cause)
	assert.Empty(t, client.Calls, "decryption failure must abort before any remote mutation")
}

func TestUpsertValidatesBeforeRemote(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.Tags = make(map[string]string)
		for i := 0; i < definition.MaxTags+1; i++ {
			d.Tags[fmt.Sprintf("key-%02d", i)] = "v"
		}
	})

	_, err := r.Upsert(context.Background(), def)

	var ve dserrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, client.Calls)
}

func TestUpsertRemoteFailureAbortsRemainingSteps(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddError("TagResource", errors.New("throttled"))
	r := newReconciler(client, "v")

	def := testDefinition(func(d *definition.SecretDefinition) {
		d.Tags = map[string]string{"env": "prod"}
		d.ResourcePolicy = `{"Version":"2012-10-17"}`
		d.ReplicaRegions = []definition.ReplicaRegion{{Region: "eu-west-1"}}
	})

	_, err := r.Upsert(context.Background(), def)

	var re dserrors.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "TagResource", re.Operation)
	assert.NotContains(t, client.CallNames(), "PutResourcePolicy",
		"steps after the failure must not run")
	assert.NotContains(t, client.CallNames(), "ReplicateSecretToRegions")
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{Value: "v"})
	r := newReconciler(client, "v")

	identity, err := r.Delete(context.Background(), "prod/db-credentials")
	require.NoError(t, err)
	assert.Equal(t, "prod/db-credentials", identity)

	client.Calls = nil
	identity, err = r.Delete(context.Background(), "prod/db-credentials")
	require.NoError(t, err, "deleting an already-deleted secret succeeds")
	assert.Equal(t, "prod/db-credentials", identity)
	assert.Equal(t, []string{"DescribeSecret"}, client.CallNames(),
		"second delete stops after observing absence")
}

func TestDeleteRemovesReplicasBeforePrimary(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSecretsManagerClient()
	client.AddSecret("prod/db-credentials", &fakes.SecretRecord{
		Value:   "v",
		Regions: []string{"eu-west-1", "ap-south-1"},
	})
	r := newReconciler(client, "v")

	_, err := r.Delete(context.Background(), "prod/db-credentials")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"DescribeSecret", "RemoveRegionsFromReplication", "DeleteSecret"},
		client.CallNames())
	assert.True(t, client.Secrets["prod/db-credentials"].Deleted)
}

func indexOf(haystack []string, needle string) int {
	for i, candidate := range haystack {
		if candidate == needle {
			return i
		}
	}
	return -1
}
