// Package source fetches encrypted blobs from wherever a definition's
// locator points. The bytes it returns are still ciphertext; nothing in
// this package sees plaintext.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

// BlobSource fetches ciphertext bytes for a locator.
type BlobSource interface {
	// Fetch returns the blob at the locator, or a NotFoundError when the
	// locator points at nothing.
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// SSMClientAPI is the subset of the SSM Parameter Store client the
// parameter source uses. It exists so tests can inject a fake.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver routes locators to the right backing source by scheme:
// file:// (or a bare path) reads from disk, ssm:// reads an SSM
// parameter.
type Resolver struct {
	ssmClient SSMClientAPI
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSSMClient sets the SSM client used for ssm:// locators.
func WithSSMClient(client SSMClientAPI) ResolverOption {
	return func(r *Resolver) {
		r.ssmClient = client
	}
}

// NewResolver creates a locator resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch implements BlobSource.
func (r *Resolver) Fetch(ctx context.Context, locator string) ([]byte, error) {
	switch {
	case strings.HasPrefix(locator, "ssm://"):
		if r.ssmClient == nil {
			return nil, dserrors.ConfigError{
				Field:      "source",
				Value:      locator,
				Message:    "ssm:// locators need an AWS client",
				Suggestion: "Configure the store section so an SSM client can be built",
			}
		}
		return fetchSSM(ctx, r.ssmClient, strings.TrimPrefix(locator, "ssm://"))
	case strings.HasPrefix(locator, "file://"):
		return fetchFile(strings.TrimPrefix(locator, "file://"))
	default:
		return fetchFile(locator)
	}
}

func fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.NotFoundError{Kind: "encrypted file", Name: path}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func fetchSSM(ctx context.Context, client SSMClientAPI, name string) ([]byte, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
		// The parameter may itself be a SecureString; decryption here is
		// transport-level only, the payload stays envelope-encrypted.
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, dserrors.NotFoundError{Kind: "ssm parameter", Name: name}
		}
		return nil, fmt.Errorf("reading ssm parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, dserrors.NotFoundError{Kind: "ssm parameter", Name: name}
	}
	return []byte(*out.Parameter.Value), nil
}
