package domain

import "time"

// ProviderUser is the transient session object owned by the identity
// provider: the provider's user handle plus the bearer token it issued.
type ProviderUser struct {
	UID       string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// SessionEventType names an auth-state transition.
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
)

// SessionEvent is published whenever a user's auth state changes.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	UID       string           `json:"uid"`
	SessionID string           `json:"session_id,omitempty"`
	At        time.Time        `json:"at"`
}
