package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

// AuthService implements login, signup and the provider-first signin on top
// of the identity provider and the user store. Every step runs in sequence;
// there is no fan-out and no retry.
type AuthService struct {
	users    ports.UserRepository
	provider ports.IdentityProvider
	audit    ports.AuditSink
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(users ports.UserRepository, provider ports.IdentityProvider, audit ports.AuditSink, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		provider: provider,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login looks the account up by email, delegates the hash comparison to the
// provider and issues a token. Every credential failure, including a
// malformed request, is reported as domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in ports.CredentialsInput) (token string, err error) {
	email := domain.NormalizeEmail(in.Email)
	var uid string
	defer func() { s.record(domain.ActionLogin, email, uid, in.RemoteIP, err) }()

	if (domain.Credentials{Email: email, Password: in.Password}).CheckSignIn() != nil {
		return "", domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if user == nil {
		// An empty uid matches no identity; the provider still spends one
		// bcrypt comparison so unknown emails cost as much as wrong passwords.
		_ = s.provider.VerifyPassword(ctx, "", in.Password)
		return "", domain.ErrInvalidCredentials
	}
	uid = user.ID

	if err := s.provider.VerifyPassword(ctx, user.ID, in.Password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return "", err
		}
		return "", fmt.Errorf("login: %w", err)
	}

	session, err := s.provider.IssueToken(ctx, user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return session.Token, nil
}

// Signup rejects an email already present in the user store, registers the
// credentials with the provider and creates the profile. The store lookup
// is check-then-act; the provider's own uniqueness constraint catches what
// slips through.
func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (res *ports.SignupResult, err error) {
	email := domain.NormalizeEmail(in.Email)
	var uid string
	defer func() { s.record(domain.ActionSignUp, email, uid, in.RemoteIP, err) }()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	session, err := s.provider.SignUp(ctx, email, in.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			return nil, err
		case errors.Is(err, domain.ErrDuplicateEmail):
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("signup: %w", err)
	}
	uid = session.UID

	user, err := s.users.Create(ctx, &domain.User{ID: session.UID, Name: name, Email: session.Email})
	if err != nil {
		s.rollbackSignup(ctx, session)
		return nil, fmt.Errorf("signup: create user: %w", err)
	}

	return &ports.SignupResult{User: user, Token: session.Token, Session: session}, nil
}

// Signin delegates credential verification entirely to the provider, then
// loads the matching profile.
func (s *AuthService) Signin(ctx context.Context, in ports.CredentialsInput) (res *ports.SigninResult, err error) {
	email := domain.NormalizeEmail(in.Email)
	var uid string
	defer func() { s.record(domain.ActionSignIn, email, uid, in.RemoteIP, err) }()

	session, err := s.provider.SignIn(ctx, email, in.Password)
	if err != nil {
		return nil, err
	}
	uid = session.UID

	user, err := s.users.GetByID(ctx, session.UID)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}
	if user == nil {
		// Identity without a profile: do not leave a usable session behind.
		if soErr := s.provider.SignOut(ctx, session.Token); soErr != nil {
			s.log.Warn().Err(soErr).Str("uid", session.UID).Msg("failed to revoke orphan session")
		}
		return nil, domain.ErrUserNotFound
	}

	return &ports.SigninResult{User: user, Session: session}, nil
}

// Signout revokes token. It is idempotent.
func (s *AuthService) Signout(ctx context.Context, token string) (err error) {
	var uid, email string
	if pu, lookupErr := s.provider.CurrentUser(ctx, token); lookupErr == nil && pu != nil {
		uid, email = pu.UID, pu.Email
	}
	defer func() { s.record(domain.ActionSignOut, email, uid, "", err) }()

	return s.provider.SignOut(ctx, token)
}

// ResolveSession maps a bearer token to its user. Any token that does not
// resolve to both a live session and a stored profile yields
// domain.ErrUnauthorized.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	pu, err := s.provider.CurrentUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if pu == nil {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, pu.UID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}

// UpdateProfile changes name and/or email. An email change is checked
// against the store, then applied to the provider identity before the
// profile, and reverted on the provider if the profile write fails.
func (s *AuthService) UpdateProfile(ctx context.Context, user *domain.User, data domain.UserUpdate) (_ *domain.User, err error) {
	defer func() { s.record(domain.ActionUpdate, user.Email, user.ID, "", err) }()

	if data.Name != nil {
		name, err := normalizeName(*data.Name)
		if err != nil {
			return nil, err
		}
		data.Name = &name
	}

	oldEmail := user.Email
	if data.Email != nil {
		email := domain.NormalizeEmail(*data.Email)
		switch {
		case email == oldEmail:
			data.Email = nil
		case !domain.IsEmail(email):
			return nil, domain.NewValidationError("email", "Invalid email address")
		default:
			data.Email = &email
		}
	}

	if data.Email != nil {
		existing, err := s.users.GetByEmail(ctx, *data.Email)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if existing != nil && existing.ID != user.ID {
			return nil, domain.ErrDuplicateEmail
		}
		if err := s.provider.UpdateEmail(ctx, user.ID, *data.Email); err != nil {
			if errors.Is(err, domain.ErrDuplicateEmail) || errors.Is(err, domain.ErrValidation) {
				return nil, err
			}
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}

	if err := s.users.Update(ctx, user, data); err != nil {
		if data.Email != nil {
			if rbErr := s.provider.UpdateEmail(ctx, user.ID, oldEmail); rbErr != nil {
				s.log.Error().Err(rbErr).Str("uid", user.ID).Msg("failed to restore identity email")
			}
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the profile and the provider identity. Both steps
// are idempotent so a retried delete succeeds.
func (s *AuthService) DeleteAccount(ctx context.Context, user *domain.User) (err error) {
	defer func() { s.record(domain.ActionDelete, user.Email, user.ID, "", err) }()

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := s.provider.DeleteIdentity(ctx, user.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// WatchSession opens an auth-state subscription for uid.
func (s *AuthService) WatchSession(ctx context.Context, uid string) (ports.Subscription, error) {
	return s.provider.Subscribe(ctx, uid)
}

func (s *AuthService) rollbackSignup(ctx context.Context, session *domain.ProviderUser) {
	if err := s.provider.SignOut(ctx, session.Token); err != nil {
		s.log.Warn().Err(err).Str("uid", session.UID).Msg("signup rollback: sign out failed")
	}
	if err := s.provider.DeleteIdentity(ctx, session.UID); err != nil {
		s.log.Error().Err(err).Str("uid", session.UID).Msg("signup rollback: identity left behind")
	}
}

func (s *AuthService) record(action domain.AuthAction, email, uid, remoteIP string, err error) {
	if s.audit == nil {
		return
	}
	s.audit.Enqueue(domain.AuthEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Email:     email,
		UserID:    uid,
		Success:   err == nil,
		Reason:    domain.Reason(err),
		RemoteIP:  remoteIP,
		Timestamp: s.now(),
	})
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > domain.MaxNameLength {
		return "", domain.NewValidationError("name", "Name must be at most %d characters", domain.MaxNameLength)
	}
	return name, nil
}
