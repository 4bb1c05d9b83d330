// Package decode turns a definition's encrypted source into the
// plaintext value the reconciler stores. It is the only bridge between
// the decrypt capability and the rest of the system.
package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaultfold/secretsync/internal/decrypt"
	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
	"github.com/vaultfold/secretsync/internal/secure"
	"github.com/vaultfold/secretsync/internal/source"
)

// Decoder fetches, decrypts and checks one secret payload.
type Decoder struct {
	source    source.BlobSource
	decrypter decrypt.Decrypter
	logger    *logging.Logger
}

// New creates a decoder over the given blob source and decrypt
// capability.
func New(src source.BlobSource, dec decrypt.Decrypter, logger *logging.Logger) *Decoder {
	return &Decoder{source: src, decrypter: dec, logger: logger}
}

// Decode produces the plaintext for a definition. Leading and trailing
// whitespace is trimmed before the value is sealed: the store treats
// the value as an opaque string, and an accidental trailing newline
// would otherwise be stored verbatim. Internal structure is preserved
// exactly.
//
// The returned Plaintext must be Destroy()ed by the caller.
func (d *Decoder) Decode(ctx context.Context, def *definition.SecretDefinition) (*secure.Plaintext, error) {
	ciphertext, err := d.source.Fetch(ctx, def.EncryptedSource)
	if err != nil {
		if dserrors.IsNotFound(err) {
			return nil, dserrors.DecodeError{
				Cause:  dserrors.DecryptFailure,
				Source: def.EncryptedSource,
				Err:    err,
			}
		}
		return nil, err
	}

	format, err := definition.ParseContentFormat(string(def.ContentFormat))
	if err != nil {
		return nil, err
	}

	plaintext, err := d.decrypter.Decrypt(ctx, ciphertext, string(format))
	if err != nil {
		var de dserrors.DecodeError
		if errors.As(err, &de) && de.Source == "" {
			de.Source = def.EncryptedSource
			return nil, de
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(plaintext)
	if err := checkFormat(trimmed, format); err != nil {
		return nil, dserrors.DecodeError{
			Cause:  dserrors.InvalidFormat,
			Source: def.EncryptedSource,
			Err:    err,
		}
	}

	if d.logger != nil {
		d.logger.Debug("decoded %s (%d bytes, format=%s)", def.Name, len(trimmed), format)
	}
	sealed := secure.NewPlaintext(trimmed)
	wipe(plaintext)
	return sealed, nil
}

// checkFormat verifies the plaintext parses in its declared structural
// format. Storage is still as an opaque string; this only guards
// against a payload that was encrypted in one format and declared as
// another.
func checkFormat(plaintext []byte, format definition.ContentFormat) error {
	switch format {
	case definition.FormatJSON:
		if !json.Valid(plaintext) {
			return fmt.Errorf("payload is not valid JSON")
		}
	case definition.FormatYAML:
		var v interface{}
		if err := yaml.Unmarshal(plaintext, &v); err != nil {
			return fmt.Errorf("payload is not valid YAML: %w", err)
		}
	case definition.FormatDotenv:
		return checkDotenv(plaintext)
	case definition.FormatText:
		// Opaque; anything goes.
	}
	return nil
}

func checkDotenv(plaintext []byte) error {
	for i, line := range strings.Split(string(plaintext), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "export ")
		key, _, found := strings.Cut(trimmed, "=")
		if !found || strings.TrimSpace(key) == "" {
			return fmt.Errorf("line %d is not a KEY=value entry", i+1)
		}
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
