package fakes

import (
	"context"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

// FakeDecrypter returns canned plaintext, or a configured error.
type FakeDecrypter struct {
	// Plaintext is returned for every Decrypt call when Err is nil.
	Plaintext []byte
	// Err, when set, fails every Decrypt call.
	Err error
	// Formats records the format argument of each call.
	Formats []string
}

// Decrypt implements decrypt.Decrypter.
func (f *FakeDecrypter) Decrypt(ctx context.Context, ciphertext []byte, format string) ([]byte, error) {
	f.Formats = append(f.Formats, format)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]byte, len(f.Plaintext))
	copy(out, f.Plaintext)
	return out, nil
}

// StaticSource serves blobs from a map, keyed by locator.
type StaticSource struct {
	Blobs map[string][]byte
}

// Fetch implements source.BlobSource.
func (s *StaticSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	blob, exists := s.Blobs[locator]
	if !exists {
		return nil, dserrors.NotFoundError{Kind: "blob", Name: locator}
	}
	return blob, nil
}
