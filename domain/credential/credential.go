// Package credential defines the Credential contract: the opaque
// collaborator the ingestion core consults for a currently valid access
// token for a (user, source) pair. Token encryption, refresh, and the
// OAuth handshake that produces these values are out of scope (spec §1);
// this package only models the shape the ingestion core depends on.
package credential

import (
	"context"
	"time"

	"github.com/personalrag/ragengine/domain/document"
)

// Credential is one per (user, source): an access token plus refresh
// metadata. Tokens are stored encrypted by the persistence layer; this
// struct carries them decrypted, for in-process use only.
type Credential struct {
	UserID       string
	Source       document.Source
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Valid reports whether the access token has not yet expired.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && (c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt))
}

// Provider resolves a currently valid access token for (user, source).
// Source Connectors depend on this interface rather than a concrete
// store so that token refresh can be substituted independently.
type Provider interface {
	AccessToken(ctx context.Context, userID string, source document.Source) (Credential, error)
}
