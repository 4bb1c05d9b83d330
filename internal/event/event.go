// Package event parses and dispatches serialized lifecycle events.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vaultfold/secretsync/internal/definition"
	dserrors "github.com/vaultfold/secretsync/internal/errors"
	"github.com/vaultfold/secretsync/internal/logging"
	"github.com/vaultfold/secretsync/pkg/lifecycle"
)

// envelopeSchema validates the transport shape before anything is
// interpreted. Field-level semantics (tag limits, region uniqueness)
// are the definition's Validate; this only rejects malformed envelopes.
const envelopeSchema = `{
  "type": "object",
  "required": ["kind", "properties"],
  "properties": {
    "kind": {
      "type": "string",
      "enum": ["Create", "Update", "Delete"]
    },
    "properties": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "priorIdentity": {"type": "string"}
  },
  "additionalProperties": false
}`

// Parse validates raw JSON against the envelope schema and decodes it.
func Parse(raw []byte) (lifecycle.Event, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(envelopeSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return lifecycle.Event{}, dserrors.ValidationError{Field: "event", Message: err.Error()}
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return lifecycle.Event{}, dserrors.ValidationError{
			Field:   "event",
			Message: strings.Join(problems, "; "),
		}
	}

	var ev lifecycle.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return lifecycle.Event{}, dserrors.ValidationError{Field: "event", Message: err.Error()}
	}
	return ev, nil
}

// Definition converts an event's string-serialized properties into a
// typed SecretDefinition. Structured properties must parse; a malformed
// tags or replicaRegions payload is a hard failure.
func Definition(ev lifecycle.Event) (*definition.SecretDefinition, error) {
	props := ev.Properties

	format, err := definition.ParseContentFormat(props["format"])
	if err != nil {
		return nil, err
	}

	def := &definition.SecretDefinition{
		Name:             props["name"],
		ContentFormat:    format,
		EncryptedSource:  props["source"],
		EncryptionKeyRef: props["encryptionKey"],
		StorageKeyRef:    props["storageKey"],
		Description:      props["description"],
	}

	if raw, ok := props["tags"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &def.Tags); err != nil {
			return nil, dserrors.ValidationError{
				Field:   "tags",
				Message: fmt.Sprintf("not a JSON object of strings: %v", err),
			}
		}
	}

	if raw, ok := props["replicaRegions"]; ok && raw != "" {
		var replicas []struct {
			Region   string `json:"region"`
			KMSKeyID string `json:"kmsKeyId"`
		}
		if err := json.Unmarshal([]byte(raw), &replicas); err != nil {
			return nil, dserrors.ValidationError{
				Field:   "replicaRegions",
				Message: fmt.Sprintf("not a JSON array of regions: %v", err),
			}
		}
		for _, r := range replicas {
			def.ReplicaRegions = append(def.ReplicaRegions, definition.ReplicaRegion{
				Region:   r.Region,
				KMSKeyID: r.KMSKeyID,
			})
		}
	}

	if raw, ok := props["resourcePolicy"]; ok && raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, dserrors.ValidationError{
				Field:   "resourcePolicy",
				Message: "not valid JSON",
			}
		}
		def.ResourcePolicy = raw
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Reconciler is the subset of the reconcile package the dispatcher
// needs; narrowed for testing.
type Reconciler interface {
	Upsert(ctx context.Context, def *definition.SecretDefinition) (string, error)
	Delete(ctx context.Context, name string) (string, error)
}

// Dispatcher routes parsed events to the reconciler. It implements
// lifecycle.Handler.
type Dispatcher struct {
	reconciler Reconciler
	logger     *logging.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(reconciler Reconciler, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{reconciler: reconciler, logger: logger}
}

// Handle executes one lifecycle event.
func (d *Dispatcher) Handle(ctx context.Context, ev lifecycle.Event) (lifecycle.Result, error) {
	switch ev.Kind {
	case lifecycle.Create, lifecycle.Update:
		def, err := Definition(ev)
		if err != nil {
			return lifecycle.Result{}, err
		}
		d.logger.Debug("handling %s for %s", ev.Kind, def.Name)
		identity, err := d.reconciler.Upsert(ctx, def)
		if err != nil {
			return lifecycle.Result{}, err
		}
		return lifecycle.Result{Identity: identity}, nil

	case lifecycle.Delete:
		// Delete correlates by the identity assigned at creation; it
		// never looks the secret up by other attributes.
		name := ev.PriorIdentity
		if name == "" {
			name = ev.Properties["name"]
		}
		if name == "" {
			return lifecycle.Result{}, dserrors.ValidationError{
				Field:   "priorIdentity",
				Message: "Delete requires the identity assigned at creation",
			}
		}
		d.logger.Debug("handling Delete for %s", name)
		identity, err := d.reconciler.Delete(ctx, name)
		if err != nil {
			return lifecycle.Result{}, err
		}
		return lifecycle.Result{Identity: identity}, nil
	}

	return lifecycle.Result{}, dserrors.ValidationError{
		Field:   "kind",
		Message: fmt.Sprintf("unknown lifecycle kind %q", ev.Kind),
	}
}
