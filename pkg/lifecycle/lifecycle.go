// Package lifecycle defines the invocation surface between the
// orchestration layer and the reconciliation routine.
//
// One reconciliation runs per lifecycle event. The orchestration layer
// decides when events fire (create on first deploy, update on change,
// delete on removal) and guarantees at most one in-flight invocation
// per identity; this package only defines the shapes crossing the
// boundary.
//
// # Event shape
//
// Structured property values (tags, resource policy, replica regions)
// arrive as serialized JSON text inside the Properties map. This is an
// artifact of the transport, not a semantic choice. Malformed
// serialized input is a hard failure, never a silently-ignored
// default.
//
// Example Create event:
//
//	{
//	  "kind": "Create",
//	  "properties": {
//	    "name":   "prod/db-credentials",
//	    "format": "json",
//	    "source": "file://secrets/db.enc.json",
//	    "tags":   "{\"env\":\"prod\"}",
//	    "replicaRegions": "[{\"region\":\"eu-west-1\"}]"
//	  }
//	}
//
// # Identity
//
// The identity returned from a Create is the stable correlation key
// the orchestration layer must echo back as PriorIdentity on later
// Update and Delete events. Delete never looks a secret up by any
// other attribute.
package lifecycle

import "context"

// Kind is the intent driving one reconciliation invocation.
type Kind string

const (
	Create Kind = "Create"
	Update Kind = "Update"
	Delete Kind = "Delete"
)

// Event is one serialized lifecycle event as delivered by the
// orchestration layer.
type Event struct {
	// Kind selects the reconciliation path.
	Kind Kind `json:"kind"`

	// Properties carries the definition's fields serialized as strings.
	// Recognized keys: name, format, source, encryptionKey, storageKey,
	// description, tags, resourcePolicy, replicaRegions.
	Properties map[string]string `json:"properties"`

	// PriorIdentity is the identity returned by the event that created
	// the resource. Required for Delete; advisory for Update.
	PriorIdentity string `json:"priorIdentity,omitempty"`
}

// Result reports the outcome of a successful invocation.
type Result struct {
	// Identity is the resource's stable identity, unchanged across the
	// resource's whole lifecycle.
	Identity string `json:"identity"`
}

// Handler executes one lifecycle event. Implementations must be safe
// to re-invoke from scratch after a partial failure: each invocation
// re-derives its plan from freshly fetched remote state.
type Handler interface {
	Handle(ctx context.Context, event Event) (Result, error)
}
