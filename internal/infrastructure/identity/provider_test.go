package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/infrastructure/db/memory"
)

func newTestProvider(t *testing.T) (*Provider, *memory.SessionStore) {
	t.Helper()
	sessions := memory.NewSessionStore()
	p, err := NewProvider(memory.NewIdentityRepository(), sessions, sessions, Config{
		JWTSecret:  "secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p, sessions
}

func TestNewProvider_RequiresSecret(t *testing.T) {
	if _, err := NewProvider(nil, nil, nil, Config{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestProvider_SignUp_ValidatesBeforeCallingStore(t *testing.T) {
	p, sessions := newTestProvider(t)

	_, err := p.SignUp(context.Background(), "bad-email", "Abcdef12")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = p.SignUp(context.Background(), "a@b.com", "abc")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("no session may be opened on validation failure")
	}
}

func TestProvider_SignUp_DuplicateIsProviderError(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.SignUp(ctx, "a@b.com", "Abcdef12"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, err := p.SignUp(ctx, "A@B.com", "Abcdef12")
	if !errors.Is(err, domain.ErrProvider) || !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected provider duplicate error, got %v", err)
	}
}

func TestProvider_SignIn_EstablishesSession(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	created, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")

	pu, err := p.SignIn(ctx, "a@b.com", "Abcdef12")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if pu.UID != created.UID || pu.Token == "" || pu.Token == created.Token {
		t.Fatalf("unexpected provider user: %+v", pu)
	}

	current, err := p.CurrentUser(ctx, pu.Token)
	if err != nil || current == nil || current.UID != created.UID || current.Email != "a@b.com" {
		t.Fatalf("expected current user, got (%+v, %v)", current, err)
	}
}

func TestProvider_SignIn_UniformFailure(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	_, _ = p.SignUp(ctx, "a@b.com", "Abcdef12")

	_, wrong := p.SignIn(ctx, "a@b.com", "Abcdef13")
	_, missing := p.SignIn(ctx, "nobody@b.com", "Abcdef12")
	if !errors.Is(wrong, domain.ErrInvalidCredentials) || !errors.Is(missing, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", wrong, missing)
	}
	if wrong.Error() != missing.Error() {
		t.Fatalf("failure messages differ")
	}
}

func TestProvider_SignOut_Idempotent(t *testing.T) {
	p, sessions := newTestProvider(t)
	ctx := context.Background()

	if err := p.SignOut(ctx, ""); err != nil {
		t.Fatalf("sign out without session: %v", err)
	}
	if err := p.SignOut(ctx, "garbage"); err != nil {
		t.Fatalf("sign out with malformed token: %v", err)
	}

	pu, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")
	if err := p.SignOut(ctx, pu.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := p.SignOut(ctx, pu.Token); err != nil {
		t.Fatalf("repeat sign out: %v", err)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected session removed")
	}

	current, err := p.CurrentUser(ctx, pu.Token)
	if err != nil || current != nil {
		t.Fatalf("expected (nil, nil) after sign out, got (%v, %v)", current, err)
	}
}

func TestProvider_CurrentUser_RejectsForeignTokens(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	pu, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")

	// Same session id, signed with another key.
	claims := sessionClaims{}
	_, _, _ = jwt.NewParser().ParseUnverified(pu.Token, &claims)
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))

	if current, _ := p.CurrentUser(ctx, forged); current != nil {
		t.Fatalf("forged token resolved")
	}
	if current, _ := p.CurrentUser(ctx, "not-a-jwt"); current != nil {
		t.Fatalf("malformed token resolved")
	}
}

func TestProvider_CurrentUser_Expired(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	pu, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")

	p.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if current, _ := p.CurrentUser(ctx, pu.Token); current != nil {
		t.Fatalf("expired token resolved")
	}
}

func TestProvider_VerifyPasswordAndIssueToken(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	pu, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")

	if err := p.VerifyPassword(ctx, pu.UID, "Abcdef12"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := p.VerifyPassword(ctx, pu.UID, "nope"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := p.VerifyPassword(ctx, "unknown", "Abcdef12"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown uid, got %v", err)
	}

	issued, err := p.IssueToken(ctx, pu.UID, "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if current, _ := p.CurrentUser(ctx, issued.Token); current == nil || current.UID != pu.UID {
		t.Fatalf("issued token does not resolve")
	}
}

func TestProvider_Subscribe(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	pu, _ := p.SignUp(ctx, "a@b.com", "Abcdef12")

	sub, err := p.Subscribe(ctx, pu.UID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := p.SignIn(ctx, "a@b.com", "Abcdef12"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != domain.SessionSignedIn || ev.UID != pu.UID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

type flakySessionStore struct {
	*memory.SessionStore
	failSave bool
}

func (f *flakySessionStore) Save(ctx context.Context, sessionID, uid string, ttl time.Duration) error {
	if f.failSave {
		return errors.New("redis down")
	}
	return f.SessionStore.Save(ctx, sessionID, uid, ttl)
}

func TestProvider_SignUp_SessionFailureRemovesIdentity(t *testing.T) {
	identities := memory.NewIdentityRepository()
	sessions := &flakySessionStore{SessionStore: memory.NewSessionStore(), failSave: true}
	p, err := NewProvider(identities, sessions, sessions, Config{
		JWTSecret:  "secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()

	if _, err := p.SignUp(ctx, "a@b.com", "Abcdef12"); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if found, _ := identities.FindByEmail(ctx, "a@b.com"); found != nil {
		t.Fatalf("identity left behind after failed session: %+v", found)
	}

	sessions.failSave = false
	if _, err := p.SignUp(ctx, "a@b.com", "Abcdef12"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
}
