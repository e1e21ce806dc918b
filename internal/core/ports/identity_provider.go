package ports

import (
	"context"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// Subscription delivers auth-state events until Unsubscribe is called or
// the context it was opened with is cancelled.
type Subscription interface {
	Events() <-chan domain.SessionEvent
	Unsubscribe()
}

// IdentityProvider verifies credentials and issues bearer tokens.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*domain.ProviderUser, error)
	SignIn(ctx context.Context, email, password string) (*domain.ProviderUser, error)
	// SignOut succeeds even when the token matches no live session.
	SignOut(ctx context.Context, token string) error
	// CurrentUser resolves a token once. It returns (nil, nil) when there is
	// no live session for it.
	CurrentUser(ctx context.Context, token string) (*domain.ProviderUser, error)
	VerifyPassword(ctx context.Context, uid, password string) error
	IssueToken(ctx context.Context, uid, email string) (*domain.ProviderUser, error)
	UpdateEmail(ctx context.Context, uid, email string) error
	DeleteIdentity(ctx context.Context, uid string) error
	Subscribe(ctx context.Context, uid string) (Subscription, error)
}
