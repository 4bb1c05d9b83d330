package decode_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultfold/secretsync/internal/decode"
	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
	"github.com/vaultfold/secretsync/tests/fakes"
)

const locator = "blob://payload"

func newDecoder(plaintext []byte, decErr error) (*decode.Decoder, *fakes.FakeDecrypter) {
	src := &fakes.StaticSource{Blobs: map[string][]byte{locator: []byte("ciphertext")}}
	decrypter := &fakes.FakeDecrypter{Plaintext: plaintext, Err: decErr}
	return decode.New(src, decrypter, logging.New(false, true)), decrypter
}

func defWithFormat(format definition.ContentFormat) *definition.SecretDefinition {
	return &definition.SecretDefinition{
		Name:            "app/config",
		ContentFormat:   format,
		EncryptedSource: locator,
	}
}

func TestDecodeTrimsOnlySurroundingWhitespace(t *testing.T) {
	t.Parallel()

	payload := "\n\n  {\"user\": \"admin\",\n   \"pass\": \"s3cret\"}  \n"
	decoder, _ := newDecoder([]byte(payload), nil)

	plaintext, err := decoder.Decode(context.Background(), defWithFormat(definition.FormatJSON))
	require.NoError(t, err)
	defer plaintext.Destroy()

	value, err := plaintext.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "{\"user\": \"admin\",\n   \"pass\": \"s3cret\"}", value,
		"internal structure is preserved, only surrounding whitespace goes")
}

func TestDecodePassesDeclaredFormatToDecrypter(t *testing.T) {
	t.Parallel()

	decoder, decrypter := newDecoder([]byte("KEY=value"), nil)

	plaintext, err := decoder.Decode(context.Background(), defWithFormat(definition.FormatDotenv))
	require.NoError(t, err)
	plaintext.Destroy()

	require.Equal(t, []string{"dotenv"}, decrypter.Formats,
		"decrypt output format must match the encrypted input format")
}

func TestDecodeFormatChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		format  definition.ContentFormat
		payload string
		wantErr bool
	}{
		{name: "valid_json", format: definition.FormatJSON, payload: `{"a":1}`},
		{name: "invalid_json", format: definition.FormatJSON, payload: `{"a":`, wantErr: true},
		{name: "valid_yaml", format: definition.FormatYAML, payload: "a: 1\nb:\n  - x\n"},
		{name: "invalid_yaml", format: definition.FormatYAML, payload: "a: [unclosed", wantErr: true},
		{name: "valid_dotenv", format: definition.FormatDotenv, payload: "# comment\nDB_HOST=localhost\nexport DB_PORT=5432\n"},
		{name: "invalid_dotenv", format: definition.FormatDotenv, payload: "not an assignment", wantErr: true},
		{name: "text_accepts_anything", format: definition.FormatText, payload: "not an assignment"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decoder, _ := newDecoder([]byte(tt.payload), nil)
			plaintext, err := decoder.Decode(context.Background(), defWithFormat(tt.format))

			if tt.wantErr {
				var de dserrors.DecodeError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, dserrors.InvalidFormat, de.Cause)
				return
			}
			require.NoError(t, err)
			plaintext.Destroy()
		})
	}
}

func TestDecodeDecryptFailureIsDistinctFromFormatError(t *testing.T) {
	t.Parallel()

	decoder, _ := newDecoder(nil, dserrors.DecodeError{
		Cause: dserrors.DecryptFailure,
		Err:   errors.New("no matching key"),
	})

	_, err := decoder.Decode(context.Background(), defWithFormat(definition.FormatJSON))

	var de dserrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dserrors.DecryptFailure, de.Cause)
	assert.Equal(t, locator, de.Source, "failure names the source it came from")
}

func TestDecodeStampsSourceOnWrappedDecryptError(t *testing.T) {
	t.Parallel()

	// The decrypter may add its own context around the failure; the
	// decode error inside still gets the source stamped.
	wrapped := fmt.Errorf("invoking sops: %w", dserrors.DecodeError{
		Cause: dserrors.DecryptFailure,
		Err:   errors.New("mac mismatch"),
	})
	decoder, _ := newDecoder(nil, wrapped)

	_, err := decoder.Decode(context.Background(), defWithFormat(definition.FormatJSON))

	var de dserrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dserrors.DecryptFailure, de.Cause)
	assert.Equal(t, locator, de.Source)
}

func TestDecodeMissingBlobIsDecryptFailure(t *testing.T) {
	t.Parallel()

	src := &fakes.StaticSource{Blobs: map[string][]byte{}}
	decoder := decode.New(src, &fakes.FakeDecrypter{}, logging.New(false, true))

	_, err := decoder.Decode(context.Background(), defWithFormat(definition.FormatText))

	var de dserrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dserrors.DecryptFailure, de.Cause)
}
