package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the secretsync.yaml structure
type Definition struct {
	Version int                           `yaml:"version"`
	Store   StoreConfig                   `yaml:"store"`
	Decrypt DecryptConfig                 `yaml:"decrypt"`
	Secrets []definition.SecretDefinition `yaml:"secrets"`
}

// StoreConfig holds remote secret store connection settings. Endpoint
// and static credentials exist for LocalStack and tests.
type StoreConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// DecryptConfig selects and configures the decrypt capability.
type DecryptConfig struct {
	// Tool is "sops" (external binary) or "age" (built-in). Default sops.
	Tool string `yaml:"tool,omitempty"`

	// SOPSBinary overrides the sops executable path.
	SOPSBinary string `yaml:"sopsBinary,omitempty"`

	// IdentityFile is an age identities file for the built-in decrypter.
	IdentityFile string `yaml:"identityFile,omitempty"`

	// UseKeyring loads the age identity from the OS keyring instead of
	// (or in addition to) IdentityFile.
	UseKeyring bool `yaml:"useKeyring,omitempty"`
}

// Load reads and parses the secretsync.yaml file, validates every
// declared secret, and enforces name uniqueness across the run.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a secretsync.yaml or pass --config",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return dserrors.ConfigError{
			Field:      "yaml",
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if err := validate(&def); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

func validate(def *Definition) error {
	switch def.Decrypt.Tool {
	case "", "sops", "age":
	default:
		return dserrors.ConfigError{
			Field:      "decrypt.tool",
			Value:      def.Decrypt.Tool,
			Message:    "unknown decrypt tool",
			Suggestion: "Use 'sops' (external binary) or 'age' (built-in)",
		}
	}

	// The uniqueness set lives for exactly one load; a name declared
	// twice in the same file would race itself at reconcile time.
	registry := definition.NewRegistry()
	for i := range def.Secrets {
		secret := &def.Secrets[i]
		if err := secret.Validate(); err != nil {
			return err
		}
		if err := registry.Register(secret.Name); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the declared definition with the given name.
func (c *Config) Find(name string) (*definition.SecretDefinition, error) {
	if c.Definition == nil {
		return nil, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "Call Load() before Find()",
		}
	}
	for i := range c.Definition.Secrets {
		if c.Definition.Secrets[i].Name == name {
			return &c.Definition.Secrets[i], nil
		}
	}
	return nil, dserrors.ConfigError{
		Field:      "secrets",
		Value:      name,
		Message:    "no secret with this name is declared",
		Suggestion: "Check 'secrets:' in secretsync.yaml",
	}
}
