package logging_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaultfold/secretsync/internal/logging"
)

func TestSecretAlwaysRedacts(t *testing.T) {
	t.Parallel()

	secret := logging.Secret("AGE-SECRET-KEY-1EXAMPLE")
	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", secret))
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		secrets []string
		want    string
	}{
		{
			name:    "single_occurrence",
			input:   "cannot read key file keys/prod-identity.txt",
			secrets: []string{"keys/prod-identity.txt"},
			want:    "cannot read key file [REDACTED]",
		},
		{
			name:    "every_occurrence",
			input:   "hunter2 rejected, retrying with hunter2",
			secrets: []string{"hunter2"},
			want:    "[REDACTED] rejected, retrying with [REDACTED]",
		},
		{
			name:    "multiple_secrets",
			input:   "tried hunter2 then hunter3",
			secrets: []string{"hunter2", "hunter3"},
			want:    "tried [REDACTED] then [REDACTED]",
		},
		{
			name:    "short_values_left_alone",
			input:   "exit status 1",
			secrets: []string{"1", "it"},
			want:    "exit status 1",
		},
		{
			name:    "no_secrets",
			input:   "all good",
			secrets: nil,
			want:    "all good",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, logging.Redact(tt.input, tt.secrets))
		})
	}
}
