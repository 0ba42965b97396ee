// Package connector defines the Source Connector capability interface
// (spec §4.D, §9): the abstract contract each upstream data source
// implements, dispatched dynamically by source name rather than by type
// switch.
package connector

import (
	"context"
	"time"

	"github.com/personalrag/ragengine/domain/credential"
	"github.com/personalrag/ragengine/domain/document"
)

// FetchOptions parameterizes a full fetch.
type FetchOptions struct {
	UserID string
	Limit  int
}

// RawRecord is an unnormalized record as returned by an upstream source,
// carried opaquely until Normalize converts it to a Document.
type RawRecord struct {
	NativeID string
	Payload  map[string]any
}

// Connector is the capability interface every Source Connector
// implements. The Ingestion Coordinator holds a collection of these,
// keyed by source name, and dispatches dynamically (spec §9).
type Connector interface {
	// Authenticate prepares the connector to act on behalf of a user,
	// obtaining a currently valid access token from the credential
	// collaborator.
	Authenticate(ctx context.Context, userID string) (credential.Credential, error)

	// FetchAll pages through every upstream record visible to the
	// authenticated principal.
	FetchAll(ctx context.Context, opts FetchOptions) ([]RawRecord, error)

	// FetchNew returns records created or updated since the given
	// instant, translated into the upstream's native "after" query.
	FetchNew(ctx context.Context, userID string, since time.Time) ([]RawRecord, error)

	// Normalize converts one raw upstream record into the unified
	// Document schema.
	Normalize(ctx context.Context, userID string, raw RawRecord) (document.Document, error)

	// ValidateConnection reports whether the current credential still
	// authorizes calls to the upstream source.
	ValidateConnection(ctx context.Context, userID string) (bool, error)

	// Source identifies which document.Source this connector serves.
	Source() document.Source
}

// Registry looks up a Connector by source name. The Ingestion
// Coordinator is constructed with one Registry and never switches on
// source type directly.
type Registry map[document.Source]Connector
