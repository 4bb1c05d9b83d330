package definition_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
)

func validDefinition() definition.SecretDefinition {
	return definition.SecretDefinition{
		Name:            "app/credentials",
		ContentFormat:   definition.FormatJSON,
		EncryptedSource: "file://secrets/app.enc.json",
	}
}

func TestParseContentFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    definition.ContentFormat
		wantErr bool
	}{
		{input: "json", want: definition.FormatJSON},
		{input: "YAML", want: definition.FormatYAML},
		{input: " dotenv ", want: definition.FormatDotenv},
		{input: "text", want: definition.FormatText},
		{input: "", want: definition.FormatText},
		{input: "toml", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			t.Parallel()

			got, err := definition.ParseContentFormat(tt.input)
			if tt.wantErr {
				var ve dserrors.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*definition.SecretDefinition)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(d *definition.SecretDefinition) {},
		},
		{
			name:    "empty_name",
			mutate:  func(d *definition.SecretDefinition) { d.Name = "  " },
			wantErr: "name",
		},
		{
			name:    "empty_source",
			mutate:  func(d *definition.SecretDefinition) { d.EncryptedSource = "" },
			wantErr: "source",
		},
		{
			name: "too_many_tags",
			mutate: func(d *definition.SecretDefinition) {
				d.Tags = make(map[string]string)
				for i := 0; i <= definition.MaxTags; i++ {
					d.Tags[fmt.Sprintf("key-%02d", i)] = "v"
				}
			},
			wantErr: "tags",
		},
		{
			name: "max_tags_allowed",
			mutate: func(d *definition.SecretDefinition) {
				d.Tags = make(map[string]string)
				for i := 0; i < definition.MaxTags; i++ {
					d.Tags[fmt.Sprintf("key-%02d", i)] = "v"
				}
			},
		},
		{
			name: "empty_tag_key",
			mutate: func(d *definition.SecretDefinition) {
				d.Tags = map[string]string{" ": "v"}
			},
			wantErr: "tags",
		},
		{
			name: "duplicate_replica_region",
			mutate: func(d *definition.SecretDefinition) {
				d.ReplicaRegions = []definition.ReplicaRegion{
					{Region: "eu-west-1"},
					{Region: "eu-west-1", KMSKeyID: "alias/other"},
				}
			},
			wantErr: "replicaRegions",
		},
		{
			name: "empty_replica_region",
			mutate: func(d *definition.SecretDefinition) {
				d.ReplicaRegions = []definition.ReplicaRegion{{Region: ""}}
			},
			wantErr: "replicaRegions",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			def := validDefinition()
			tt.mutate(&def)
			err := def.Validate()

			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var ve dserrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantErr, ve.Field)
		})
	}
}

func TestRegionNames(t *testing.T) {
	t.Parallel()

	def := validDefinition()
	def.ReplicaRegions = []definition.ReplicaRegion{
		{Region: "eu-west-1"},
		{Region: "ap-south-1", KMSKeyID: "alias/regional"},
	}
	assert.Equal(t, []string{"eu-west-1", "ap-south-1"}, def.RegionNames())
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	registry := definition.NewRegistry()
	require.NoError(t, registry.Register("app/credentials"))
	require.NoError(t, registry.Register("app/api-key"))

	err := registry.Register("app/credentials")
	var ve dserrors.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRegistryIsPerRun(t *testing.T) {
	t.Parallel()

	// A fresh registry carries nothing over from a previous run.
	first := definition.NewRegistry()
	require.NoError(t, first.Register("app/credentials"))

	second := definition.NewRegistry()
	require.NoError(t, second.Register("app/credentials"))
}
