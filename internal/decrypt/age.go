package decrypt

import (
	"bytes"
	"context"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

// AgeDecrypter decrypts age envelopes in-process. Unlike sops, age does
// not re-serialize structured content, so the plaintext is exactly the
// bytes that were encrypted; format checking is the decoder's job.
type AgeDecrypter struct {
	identities []age.Identity
}

// NewAgeDecrypter creates a decrypter over the given identities.
func NewAgeDecrypter(identities []age.Identity) *AgeDecrypter {
	return &AgeDecrypter{identities: identities}
}

// ParseIdentities reads age identities (one per line, comments allowed)
// from r.
func ParseIdentities(r io.Reader) ([]age.Identity, error) {
	return age.ParseIdentities(r)
}

// Decrypt opens the envelope. Armored ciphertexts are detected by
// header and unwrapped first.
func (a *AgeDecrypter) Decrypt(ctx context.Context, ciphertext []byte, format string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(a.identities) == 0 {
		return nil, dserrors.DecodeError{
			Cause: dserrors.DecryptFailure,
			Err:   errNoIdentities,
		}
	}

	var src io.Reader = bytes.NewReader(ciphertext)
	if strings.HasPrefix(strings.TrimSpace(string(peek(ciphertext, len(armor.Header)+4))), armor.Header) {
		src = armor.NewReader(src)
	}

	out, err := age.Decrypt(src, a.identities...)
	if err != nil {
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: err}
	}
	plaintext, err := io.ReadAll(out)
	if err != nil {
		return nil, dserrors.DecodeError{Cause: dserrors.DecryptFailure, Err: err}
	}
	return plaintext, nil
}

func peek(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

var errNoIdentities = dserrors.UserError{
	Message:    "No age identities available",
	Suggestion: "Run 'secretsync keys import' or set decrypt.identityFile in secretsync.yaml",
}
