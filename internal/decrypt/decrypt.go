// Package decrypt provides the decrypt capability consumed by the
// decoder. Ciphertext goes in, plaintext comes out; the reconciler
// never touches this package.
//
// Two implementations are provided: SOPSTool shells out to the external
// sops binary, AgeDecrypter handles age envelopes in-process.
package decrypt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
)

// Decrypter turns ciphertext into plaintext. Format is the declared
// content format of the payload; implementations that re-serialize
// (sops) must produce output in the same structural format the payload
// was encrypted in.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte, format string) ([]byte, error)
}

// SOPSTool invokes the external sops binary for envelope decryption.
// The binary resolves key material itself (KMS, age, PGP) from its own
// configuration and the definition's encryption key reference passed
// through the environment.
type SOPSTool struct {
	// Binary is the sops executable; defaults to "sops" on PATH.
	Binary string

	// KeyRef, when set, is exported as SOPS_AGE_KEY_FILE or used as-is
	// by sops' own key resolution. The reconciler never reads it.
	KeyRef string

	Logger *logging.Logger
}

// NewSOPSTool creates a sops-backed decrypter.
func NewSOPSTool(binary, keyRef string, logger *logging.Logger) *SOPSTool {
	if binary == "" {
		binary = "sops"
	}
	return &SOPSTool{Binary: binary, KeyRef: keyRef, Logger: logger}
}

// sopsType maps a content format onto sops' --input-type/--output-type
// vocabulary. Plain text payloads are treated as binary so sops leaves
// them byte-for-byte intact.
func sopsType(format string) string {
	switch format {
	case "json", "yaml", "dotenv":
		return format
	default:
		return "binary"
	}
}

// Decrypt runs sops --decrypt on the ciphertext. Output format matches
// input format, so encrypted JSON decodes to plaintext JSON rather than
// a flattened key-value form. Any diagnostic output on stderr fails the
// operation, even on exit status zero: partially-decrypted or
// warning-laden content must never reach the store.
func (s *SOPSTool) Decrypt(ctx context.Context, ciphertext []byte, format string) ([]byte, error) {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return nil, dserrors.DecodeError{
			Cause: dserrors.DecryptFailure,
			Err:   fmt.Errorf("sops binary %q not found: %w", s.Binary, err),
		}
	}

	// sops wants a file whose extension does not fight the explicit
	// type flags. The ciphertext is envelope-encrypted, so a temp file
	// holds no secret material.
	tmp, err := os.CreateTemp("", "secretsync-*.enc")
	if err != nil {
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: err}
	}

	t := sopsType(format)
	cmd := exec.CommandContext(ctx, s.Binary,
		"--decrypt",
		"--input-type", t,
		"--output-type", t,
		filepath.Clean(tmp.Name()),
	)
	cmd.Env = os.Environ()
	if s.KeyRef != "" {
		cmd.Env = append(cmd.Env, "SOPS_AGE_KEY_FILE="+s.KeyRef)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if s.Logger != nil {
		s.Logger.Debug("running %s --decrypt (type=%s)", s.Binary, t)
	}

	runErr := cmd.Run()
	if diag := strings.TrimSpace(stderr.String()); diag != "" {
		// Fail closed on any diagnostic, not just nonzero exits. The
		// diagnostic can echo the key reference, so scrub it before the
		// text reaches an error message or log line.
		diag = logging.Redact(diag, []string{s.KeyRef})
		return nil, dserrors.DecodeError{
			Cause: dserrors.DecryptFailure,
			Err:   fmt.Errorf("sops reported: %s", diag),
		}
	}
	if runErr != nil {
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: runErr}
	}
	return stdout.Bytes(), nil
}
