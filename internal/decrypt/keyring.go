package decrypt

import (
	"errors"
	"strings"

	"filippo.io/age"
	"github.com/zalando/go-keyring"

	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

const (
	keyringService = "secretsync"
	keyringAccount = "age-identity"
)

// StoreIdentity saves an age identity string in the OS keyring so the
// private key never sits in the working tree.
func StoreIdentity(identity string) error {
	identity = strings.TrimSpace(identity)
	if _, err := age.ParseIdentities(strings.NewReader(identity)); err != nil {
		return dserrors.ValidationError{Field: "identity", Message: err.Error()}
	}
	return keyring.Set(keyringService, keyringAccount, identity)
}

// LoadIdentities reads the stored identity from the OS keyring.
func LoadIdentities() ([]age.Identity, error) {
	stored, err := keyring.Get(keyringService, keyringAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, dserrors.NotFoundError{Kind: "keyring entry", Name: keyringAccount}
		}
		return nil, err
	}
	return age.ParseIdentities(strings.NewReader(stored))
}

// IdentityRecipients returns the public recipients of the stored
// identity, safe to print.
func IdentityRecipients() ([]string, error) {
	stored, err := keyring.Get(keyringService, keyringAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, dserrors.NotFoundError{Kind: "keyring entry", Name: keyringAccount}
		}
		return nil, err
	}

	var recipients []string
	for _, line := range strings.Split(stored, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := age.ParseX25519Identity(line)
		if err != nil {
			continue
		}
		recipients = append(recipients, id.Recipient().String())
	}
	return recipients, nil
}

// DeleteIdentity removes the stored identity. Deleting a missing entry
// is not an error.
func DeleteIdentity() error {
	err := keyring.Delete(keyringService, keyringAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
