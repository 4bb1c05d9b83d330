// Package fakes provides hand-written fakes for the external
// collaborators: the Secrets Manager client, the decrypt capability and
// the blob source.
package fakes

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretRecord holds the remote-side state of one fake secret.
type SecretRecord struct {
	Value       string
	Description string
	KmsKeyId    string
	Tags        map[string]string
	Regions     []string
	Policy      string
	Deleted     bool
}

// FakeSecretsManagerClient is an in-memory stand-in for the Secrets
// Manager API. It records the order of calls so tests can assert
// sequencing, and returns configured errors per operation.
type FakeSecretsManagerClient struct {
	// Secrets maps secret names to their remote state.
	Secrets map[string]*SecretRecord
	// Errors maps operation names (e.g. "TagResource") to errors to return.
	Errors map[string]error
	// Calls records every operation invoked, in order, as "Operation:name".
	Calls []string
}

// NewFakeSecretsManagerClient creates an empty fake store.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretRecord),
		Errors:  make(map[string]error),
	}
}

// AddSecret seeds remote state for a secret.
func (f *FakeSecretsManagerClient) AddSecret(name string, record *SecretRecord) {
	if record.Tags == nil {
		record.Tags = make(map[string]string)
	}
	f.Secrets[name] = record
}

// AddError configures an operation to fail.
func (f *FakeSecretsManagerClient) AddError(operation string, err error) {
	f.Errors[operation] = err
}

// CallNames returns the recorded operations without the secret names.
func (f *FakeSecretsManagerClient) CallNames() []string {
	names := make([]string, 0, len(f.Calls))
	for _, call := range f.Calls {
		for i := 0; i < len(call); i++ {
			if call[i] == ':' {
				names = append(names, call[:i])
				break
			}
		}
	}
	return names
}

func (f *FakeSecretsManagerClient) record(operation, name string) error {
	f.Calls = append(f.Calls, operation+":"+name)
	if err, exists := f.Errors[operation]; exists {
		return err
	}
	return nil
}

func notFound(name string) error {
	return &types.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
	}
}

func (f *FakeSecretsManagerClient) live(name string) (*SecretRecord, error) {
	record, exists := f.Secrets[name]
	if !exists || record.Deleted {
		return nil, notFound(name)
	}
	return record, nil
}

// DescribeSecret returns the fake secret's metadata.
func (f *FakeSecretsManagerClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("DescribeSecret", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}

	out := &secretsmanager.DescribeSecretOutput{
		ARN:  aws.String("arn:aws:secretsmanager:us-east-1:123456789012:secret:" + name),
		Name: params.SecretId,
	}
	keys := make([]string, 0, len(record.Tags))
	for key := range record.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Tags = append(out.Tags, types.Tag{
			Key:   aws.String(key),
			Value: aws.String(record.Tags[key]),
		})
	}
	for _, region := range record.Regions {
		out.ReplicationStatus = append(out.ReplicationStatus, types.ReplicationStatusType{
			Region: aws.String(region),
			Status: types.StatusTypeInSync,
		})
	}
	return out, nil
}

// CreateSecret creates a fresh fake secret.
func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	name := aws.ToString(params.Name)
	if err := f.record("CreateSecret", name); err != nil {
		return nil, err
	}
	if _, exists := f.Secrets[name]; exists && !f.Secrets[name].Deleted {
		return nil, &types.ResourceExistsException{
			Message: aws.String("the secret " + name + " already exists"),
		}
	}
	f.Secrets[name] = &SecretRecord{
		Value:       aws.ToString(params.SecretString),
		Description: aws.ToString(params.Description),
		KmsKeyId:    aws.ToString(params.KmsKeyId),
		Tags:        make(map[string]string),
	}
	return &secretsmanager.CreateSecretOutput{
		ARN:  aws.String("arn:aws:secretsmanager:us-east-1:123456789012:secret:" + name),
		Name: params.Name,
	}, nil
}

// UpdateSecret overwrites the value of an existing fake secret.
func (f *FakeSecretsManagerClient) UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("UpdateSecret", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	if params.SecretString != nil {
		record.Value = *params.SecretString
	}
	if params.Description != nil {
		record.Description = *params.Description
	}
	if params.KmsKeyId != nil {
		record.KmsKeyId = *params.KmsKeyId
	}
	return &secretsmanager.UpdateSecretOutput{Name: params.SecretId}, nil
}

// TagResource applies tags wholesale.
func (f *FakeSecretsManagerClient) TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("TagResource", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	for _, tag := range params.Tags {
		record.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &secretsmanager.TagResourceOutput{}, nil
}

// UntagResource removes tag keys.
func (f *FakeSecretsManagerClient) UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("UntagResource", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	for _, key := range params.TagKeys {
		delete(record.Tags, key)
	}
	return &secretsmanager.UntagResourceOutput{}, nil
}

// PutResourcePolicy attaches a policy document wholesale.
func (f *FakeSecretsManagerClient) PutResourcePolicy(ctx context.Context, params *secretsmanager.PutResourcePolicyInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutResourcePolicyOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("PutResourcePolicy", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	record.Policy = aws.ToString(params.ResourcePolicy)
	return &secretsmanager.PutResourcePolicyOutput{Name: params.SecretId}, nil
}

// DeleteResourcePolicy clears the policy. Clearing a secret with no
// policy returns ResourceNotFoundException, matching the real API.
func (f *FakeSecretsManagerClient) DeleteResourcePolicy(ctx context.Context, params *secretsmanager.DeleteResourcePolicyInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteResourcePolicyOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("DeleteResourcePolicy", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	if record.Policy == "" {
		return nil, notFound(name)
	}
	record.Policy = ""
	return &secretsmanager.DeleteResourcePolicyOutput{Name: params.SecretId}, nil
}

// ReplicateSecretToRegions adds replica regions idempotently.
func (f *FakeSecretsManagerClient) ReplicateSecretToRegions(ctx context.Context, params *secretsmanager.ReplicateSecretToRegionsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ReplicateSecretToRegionsOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("ReplicateSecretToRegions", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	for _, replica := range params.AddReplicaRegions {
		region := aws.ToString(replica.Region)
		present := false
		for _, existing := range record.Regions {
			if existing == region {
				present = true
				break
			}
		}
		if !present {
			record.Regions = append(record.Regions, region)
		}
	}
	return &secretsmanager.ReplicateSecretToRegionsOutput{}, nil
}

// RemoveRegionsFromReplication drops replica regions.
func (f *FakeSecretsManagerClient) RemoveRegionsFromReplication(ctx context.Context, params *secretsmanager.RemoveRegionsFromReplicationInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RemoveRegionsFromReplicationOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("RemoveRegionsFromReplication", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	remove := make(map[string]struct{}, len(params.RemoveReplicaRegions))
	for _, region := range params.RemoveReplicaRegions {
		remove[region] = struct{}{}
	}
	var kept []string
	for _, region := range record.Regions {
		if _, gone := remove[region]; !gone {
			kept = append(kept, region)
		}
	}
	record.Regions = kept
	return &secretsmanager.RemoveRegionsFromReplicationOutput{}, nil
}

// DeleteSecret marks the secret gone. The permanent-delete flag is
// recorded so tests can assert it was requested.
func (f *FakeSecretsManagerClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("DeleteSecret", name); err != nil {
		return nil, err
	}
	record, err := f.live(name)
	if err != nil {
		return nil, err
	}
	if len(record.Regions) > 0 {
		return nil, &types.InvalidRequestException{
			Message: aws.String("secret still has replica regions"),
		}
	}
	if !aws.ToBool(params.ForceDeleteWithoutRecovery) {
		return nil, &types.InvalidRequestException{
			Message: aws.String("expected a permanent delete"),
		}
	}
	record.Deleted = true
	return &secretsmanager.DeleteSecretOutput{Name: params.SecretId}, nil
}
