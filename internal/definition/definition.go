// Package definition holds the desired-state model: what a secret
// should look like in the remote store, independent of what currently
// exists there.
package definition

import (
	"fmt"
	"strings"
	"sync"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

// MaxTags is the store-imposed tag limit per secret. Exceeding it is a
// validation failure raised before any remote call.
const MaxTags = 50

// ContentFormat describes how decrypted plaintext is interpreted before
// storage. Storage itself is always as an opaque string.
type ContentFormat string

const (
	FormatJSON   ContentFormat = "json"
	FormatYAML   ContentFormat = "yaml"
	FormatDotenv ContentFormat = "dotenv"
	FormatText   ContentFormat = "text"
)

// ParseContentFormat converts a serialized format name into a
// ContentFormat. Unknown names are a ValidationError.
func ParseContentFormat(s string) (ContentFormat, error) {
	switch ContentFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatDotenv:
		return FormatDotenv, nil
	case FormatText, "":
		// Absent format means plain text.
		return FormatText, nil
	}
	return "", dserrors.ValidationError{
		Field:   "contentFormat",
		Message: fmt.Sprintf("unknown format %q (expected json, yaml, dotenv or text)", s),
	}
}

// ReplicaRegion names a region the store should replicate the secret
// to, with an optional region-local KMS key.
type ReplicaRegion struct {
	Region   string `yaml:"region"`
	KMSKeyID string `yaml:"kmsKeyId,omitempty"`
}

// SecretDefinition is the desired state for one secret. It is
// constructed once per declaration and is immutable for the life of an
// invocation; Name is the sole correlation key across lifecycle events.
type SecretDefinition struct {
	// Name is the secret's identifier in the remote store's namespace.
	Name string `yaml:"name"`

	// ContentFormat declares how the decrypted plaintext is structured.
	ContentFormat ContentFormat `yaml:"format,omitempty"`

	// EncryptedSource locates the ciphertext (file://path or ssm://name).
	EncryptedSource string `yaml:"source"`

	// EncryptionKeyRef points the decrypt capability at its key. Only the
	// decoder reads this; the reconciler never sees it.
	EncryptionKeyRef string `yaml:"encryptionKey,omitempty"`

	// StorageKeyRef is the KMS key the store encrypts the value with.
	// Empty means the store default.
	StorageKeyRef string `yaml:"storageKey,omitempty"`

	Description string `yaml:"description,omitempty"`

	// Tags to attach. Keys are unique; at most MaxTags entries.
	Tags map[string]string `yaml:"tags,omitempty"`

	// ResourcePolicy is an access-control document attached wholesale.
	// The reconciler never diffs it: present means overwrite, absent
	// means clear.
	ResourcePolicy string `yaml:"resourcePolicy,omitempty"`

	// ReplicaRegions the store should maintain copies in, at most one
	// entry per region.
	ReplicaRegions []ReplicaRegion `yaml:"replicaRegions,omitempty"`
}

// Validate checks the definition before any remote call.
func (d *SecretDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return dserrors.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if _, err := ParseContentFormat(string(d.ContentFormat)); err != nil {
		return err
	}
	if strings.TrimSpace(d.EncryptedSource) == "" {
		return dserrors.ValidationError{Field: "source", Message: "must not be empty"}
	}
	if len(d.Tags) > MaxTags {
		return dserrors.ValidationError{
			Field:   "tags",
			Message: fmt.Sprintf("%d tags exceed the store limit of %d", len(d.Tags), MaxTags),
		}
	}
	for key := range d.Tags {
		if strings.TrimSpace(key) == "" {
			return dserrors.ValidationError{Field: "tags", Message: "tag keys must not be empty"}
		}
	}
	seen := make(map[string]struct{}, len(d.ReplicaRegions))
	for _, r := range d.ReplicaRegions {
		if strings.TrimSpace(r.Region) == "" {
			return dserrors.ValidationError{Field: "replicaRegions", Message: "region must not be empty"}
		}
		if _, dup := seen[r.Region]; dup {
			return dserrors.ValidationError{
				Field:   "replicaRegions",
				Message: fmt.Sprintf("region %q declared more than once", r.Region),
			}
		}
		seen[r.Region] = struct{}{}
	}
	return nil
}

// RegionNames returns the desired replica region names in declaration
// order.
func (d *SecretDefinition) RegionNames() []string {
	names := make([]string, 0, len(d.ReplicaRegions))
	for _, r := range d.ReplicaRegions {
		names = append(names, r.Region)
	}
	return names
}

// Registry tracks definition names within one deployment run so that
// two declarations cannot claim the same remote identity. It is owned
// by the enclosing run context and constructed fresh per run; it is
// deliberately not package-level state.
type Registry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewRegistry creates an empty uniqueness set for one deployment run.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register claims a name. Claiming a name twice within the same run is
// a ValidationError.
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[name]; exists {
		return dserrors.ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("%q is already declared in this run", name),
		}
	}
	r.names[name] = struct{}{}
	return nil
}
