// Package identity implements the identity provider: it owns credentials,
// mints bearer tokens and tracks the server-side sessions behind them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

const defaultTokenTTL = 24 * time.Hour

// Config holds the token and hashing parameters.
type Config struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Provider implements ports.IdentityProvider on top of an identity
// repository, a revocable session store and a state notifier.
type Provider struct {
	identities ports.IdentityRepository
	sessions   ports.SessionStore
	notifier   ports.SessionNotifier
	secret     []byte
	ttl        time.Duration
	cost       int
	dummyHash  []byte
	now        func() time.Time
	log        zerolog.Logger
}

// NewProvider builds a Provider. The returned instance is meant to live for
// the whole process and be shared by every handler.
func NewProvider(
	identities ports.IdentityRepository,
	sessions ports.SessionStore,
	notifier ports.SessionNotifier,
	cfg Config,
	log zerolog.Logger,
) (*Provider, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("identity: empty JWT secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	// Compared against when the email is unknown so both failure paths cost
	// one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	return &Provider{
		identities: identities,
		sessions:   sessions,
		notifier:   notifier,
		secret:     []byte(cfg.JWTSecret),
		ttl:        cfg.TokenTTL,
		cost:       cfg.BcryptCost,
		dummyHash:  dummy,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}, nil
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignUp registers a new identity and opens a session for it.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	creds := domain.Credentials{Email: domain.NormalizeEmail(email), Password: password}
	if err := creds.CheckSignUp(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.cost)
	if err != nil {
		return nil, domain.ProviderFailure("sign up", err)
	}

	identity := &ports.Identity{
		UID:          uuid.NewString(),
		Email:        creds.Email,
		PasswordHash: string(hash),
		CreatedAt:    p.now(),
	}
	if err := p.identities.Create(ctx, identity); err != nil {
		return nil, domain.ProviderFailure("sign up", err)
	}

	session, err := p.startSession(ctx, identity.UID, identity.Email)
	if err != nil {
		// Without a session the caller never learns the uid, so the
		// identity must not outlive this call.
		if delErr := p.identities.Delete(context.WithoutCancel(ctx), identity.UID); delErr != nil {
			p.log.Error().Err(delErr).Str("uid", identity.UID).Msg("sign up: identity left behind")
		}
		return nil, err
	}
	return session, nil
}

// SignIn verifies credentials. Unknown email and wrong password both yield
// domain.ErrInvalidCredentials.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	creds := domain.Credentials{Email: domain.NormalizeEmail(email), Password: password}
	if err := creds.CheckSignIn(); err != nil {
		return nil, err
	}

	identity, err := p.identities.FindByEmail(ctx, creds.Email)
	if err != nil {
		return nil, domain.ProviderFailure("sign in", err)
	}
	if err := p.compare(identity, creds.Password); err != nil {
		return nil, err
	}

	return p.startSession(ctx, identity.UID, identity.Email)
}

// SignOut revokes the session behind token. Tokens that are malformed,
// expired or already revoked are accepted silently.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return nil
	}

	if err := p.sessions.Delete(ctx, claims.ID); err != nil {
		return domain.ProviderFailure("sign out", err)
	}

	p.publish(ctx, domain.SessionEvent{
		Type:      domain.SessionSignedOut,
		UID:       claims.Subject,
		SessionID: claims.ID,
		At:        p.now(),
	})
	return nil
}

// CurrentUser resolves token to its live session, or (nil, nil).
func (p *Provider) CurrentUser(ctx context.Context, token string) (*domain.ProviderUser, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, nil
	}

	uid, err := p.sessions.Lookup(ctx, claims.ID)
	if err != nil {
		return nil, domain.ProviderFailure("current user", err)
	}
	if uid == "" || uid != claims.Subject {
		return nil, nil
	}

	return &domain.ProviderUser{
		UID:       uid,
		Email:     claims.Email,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyPassword checks password against the stored hash of uid.
func (p *Provider) VerifyPassword(ctx context.Context, uid, password string) error {
	identity, err := p.identities.FindByUID(ctx, uid)
	if err != nil {
		return domain.ProviderFailure("verify password", err)
	}
	return p.compare(identity, password)
}

// IssueToken opens a session for an already verified uid.
func (p *Provider) IssueToken(ctx context.Context, uid, email string) (*domain.ProviderUser, error) {
	return p.startSession(ctx, uid, domain.NormalizeEmail(email))
}

func (p *Provider) UpdateEmail(ctx context.Context, uid, email string) error {
	email = domain.NormalizeEmail(email)
	if !domain.IsEmail(email) {
		return domain.NewValidationError("email", "Invalid email address")
	}
	if err := p.identities.UpdateEmail(ctx, uid, email); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return err
		}
		return domain.ProviderFailure("update email", err)
	}
	return nil
}

func (p *Provider) DeleteIdentity(ctx context.Context, uid string) error {
	if err := p.identities.Delete(ctx, uid); err != nil {
		return domain.ProviderFailure("delete identity", err)
	}
	return nil
}

// Subscribe opens a long-lived auth-state subscription for uid.
func (p *Provider) Subscribe(ctx context.Context, uid string) (ports.Subscription, error) {
	sub, err := p.notifier.Subscribe(ctx, uid)
	if err != nil {
		return nil, domain.ProviderFailure("subscribe", err)
	}
	return sub, nil
}

func (p *Provider) compare(identity *ports.Identity, password string) error {
	if identity == nil {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
		return domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

func (p *Provider) startSession(ctx context.Context, uid, email string) (*domain.ProviderUser, error) {
	now := p.now()
	expiresAt := now.Add(p.ttl)
	sessionID := uuid.NewString()

	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, domain.ProviderFailure("sign token", err)
	}

	if err := p.sessions.Save(ctx, sessionID, uid, p.ttl); err != nil {
		return nil, domain.ProviderFailure("save session", err)
	}

	p.publish(ctx, domain.SessionEvent{
		Type:      domain.SessionSignedIn,
		UID:       uid,
		SessionID: sessionID,
		At:        now,
	})

	return &domain.ProviderUser{
		UID:       uid,
		Email:     email,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (p *Provider) parse(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims := &sessionClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !tkn.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// publish is best effort: a lost notification never fails the auth flow.
func (p *Provider) publish(ctx context.Context, event domain.SessionEvent) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, event); err != nil {
		p.log.Warn().Err(err).
			Str("uid", event.UID).
			Str("event", string(event.Type)).
			Msg("failed to publish session event")
	}
}
