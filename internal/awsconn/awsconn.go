// Package awsconn builds the AWS clients the rest of the system uses.
package awsconn

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Settings carries connection configuration for all AWS clients.
// Endpoint and the static credential pair exist for LocalStack and
// tests; production deployments use the default credential chain.
type Settings struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Clients bundles the service clients built from one shared config.
type Clients struct {
	SecretsManager *secretsmanager.Client
	SSM            *ssm.Client
	STS            *sts.Client
}

// New loads AWS configuration and constructs the service clients.
func New(ctx context.Context, settings Settings) (*Clients, error) {
	region := settings.Region
	if region == "" {
		region = "us-east-1"
	}

	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clients := &Clients{}
	if settings.Endpoint != "" {
		endpoint := settings.Endpoint
		clients.SecretsManager = secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		})
		clients.SSM = ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			o.BaseEndpoint = &endpoint
		})
		clients.STS = sts.NewFromConfig(cfg, func(o *sts.Options) {
			o.BaseEndpoint = &endpoint
		})
	} else {
		clients.SecretsManager = secretsmanager.NewFromConfig(cfg)
		clients.SSM = ssm.NewFromConfig(cfg)
		clients.STS = sts.NewFromConfig(cfg)
	}
	return clients, nil
}

// CallerIdentity returns the ARN of the active AWS principal. Used by
// doctor to confirm credentials resolve before any reconciliation.
func (c *Clients) CallerIdentity(ctx context.Context) (string, error) {
	out, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("sts get-caller-identity failed: %w", err)
	}
	return aws.ToString(out.Arn), nil
}
