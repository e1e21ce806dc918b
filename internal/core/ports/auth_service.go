package ports

import (
	"context"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// SignupInput carries the signup form or request body.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	RemoteIP string
}

// CredentialsInput carries a login or signin attempt.
type CredentialsInput struct {
	Email    string
	Password string
	RemoteIP string
}

// SignupResult is returned after a successful signup. Token duplicates
// Session.Token for the JSON endpoint.
type SignupResult struct {
	User    *domain.User
	Token   string
	Session *domain.ProviderUser
}

// SigninResult is returned by the provider-first signin flow.
type SigninResult struct {
	User    *domain.User
	Session *domain.ProviderUser
}

// AuthService composes the identity provider and the user store.
type AuthService interface {
	Login(ctx context.Context, in CredentialsInput) (string, error)
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	Signin(ctx context.Context, in CredentialsInput) (*SigninResult, error)
	Signout(ctx context.Context, token string) error
	ResolveSession(ctx context.Context, token string) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User, data domain.UserUpdate) (*domain.User, error)
	DeleteAccount(ctx context.Context, user *domain.User) error
	WatchSession(ctx context.Context, uid string) (Subscription, error)
}
