package ports

import (
	"context"
	"time"
)

// Identity is the provider-side credential record.
type Identity struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// IdentityRepository persists provider credentials. Create must reject a
// second identity with the same email with domain.ErrDuplicateEmail.
type IdentityRepository interface {
	Create(ctx context.Context, identity *Identity) error
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByUID(ctx context.Context, uid string) (*Identity, error)
	UpdateEmail(ctx context.Context, uid, email string) error
	Delete(ctx context.Context, uid string) error
}

// SessionStore keeps the server-side half of issued tokens so they can be
// revoked before they expire.
type SessionStore interface {
	Save(ctx context.Context, sessionID, uid string, ttl time.Duration) error
	// Lookup returns the owning uid, or "" when the session is gone.
	Lookup(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}
