package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
	"github.com/99minutos/accounts-service/internal/infrastructure/db/memory"
	"github.com/99minutos/accounts-service/internal/infrastructure/identity"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *recordingSink) Enqueue(ev domain.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) last() domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type failingCreateRepo struct {
	*memory.UserRepository
}

func (f failingCreateRepo) Create(context.Context, *domain.User) (*domain.User, error) {
	return nil, errors.New("write concern failed")
}

type fixture struct {
	svc        *AuthService
	users      ports.UserRepository
	identities *memory.IdentityRepository
	sessions   *memory.SessionStore
	sink       *recordingSink
}

func newFixture(t *testing.T, users ports.UserRepository) *fixture {
	t.Helper()
	identities := memory.NewIdentityRepository()
	sessions := memory.NewSessionStore()
	provider, err := identity.NewProvider(identities, sessions, sessions, identity.Config{
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	sink := &recordingSink{}
	return &fixture{
		svc:        NewAuthService(users, provider, sink, zerolog.Nop()),
		users:      users,
		identities: identities,
		sessions:   sessions,
		sink:       sink,
	}
}

func TestAuthService_SignupThenLogin(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, ports.SignupInput{Name: "Alice", Email: "A@B.com", Password: "Abcdef12"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if res.Token == "" || res.User == nil {
		t.Fatalf("expected user and token, got %+v", res)
	}
	if res.User.Email != "a@b.com" || res.User.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", res.User)
	}

	token, err := f.svc.Login(ctx, ports.CredentialsInput{Email: "a@b.com", Password: "Abcdef12"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}

	user, err := f.svc.ResolveSession(ctx, token)
	if err != nil || user.ID != res.User.ID {
		t.Fatalf("expected token to resolve to the new user, got (%v, %v)", user, err)
	}

	ev := f.sink.last()
	if ev.Action != domain.ActionLogin || !ev.Success || ev.UserID != res.User.ID {
		t.Fatalf("unexpected audit entry: %+v", ev)
	}
}

func TestAuthService_Login_DoesNotEnumerate(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	if _, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, wrongPassword := f.svc.Login(ctx, ports.CredentialsInput{Email: "a@b.com", Password: "wrong"})
	_, noSuchEmail := f.svc.Login(ctx, ports.CredentialsInput{Email: "ghost@b.com", Password: "Abcdef12"})

	if !errors.Is(wrongPassword, domain.ErrInvalidCredentials) || !errors.Is(noSuchEmail, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongPassword, noSuchEmail)
	}
	if wrongPassword.Error() != noSuchEmail.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPassword, noSuchEmail)
	}
}

func TestAuthService_Signup_Duplicate(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	if _, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	for _, pw := range []string{"Abcdef12", "weak", ""} {
		_, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: pw})
		if !errors.Is(err, domain.ErrDuplicateEmail) {
			t.Fatalf("password %q: expected ErrDuplicateEmail, got %v", pw, err)
		}
	}
	if n, _ := f.users.Count(ctx); n != 1 {
		t.Fatalf("expected store size 1, got %d", n)
	}
}

func TestAuthService_Signup_ProviderRejectsRace(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	// An identity the user store does not know about yet, as if a
	// concurrent signup won the race.
	_ = f.identities.Create(ctx, &ports.Identity{UID: "other", Email: "a@b.com", PasswordHash: "x"})

	_, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Signup_WeakPassword(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())

	_, err := f.svc.Signup(context.Background(), ports.SignupInput{Email: "a@b.com", Password: "abcdefgh"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password ValidationError, got %v", err)
	}
}

func TestAuthService_Signup_RollsBackIdentity(t *testing.T) {
	f := newFixture(t, failingCreateRepo{memory.NewUserRepository()})
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if id, _ := f.identities.FindByEmail(ctx, "a@b.com"); id != nil {
		t.Fatalf("expected identity removed after failed profile write")
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expected session revoked after failed profile write")
	}
}

func TestAuthService_SigninAndSignout(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	signup, _ := f.svc.Signup(ctx, ports.SignupInput{Name: "Bob", Email: "bob@b.com", Password: "Abcdef12"})

	res, err := f.svc.Signin(ctx, ports.CredentialsInput{Email: "bob@b.com", Password: "Abcdef12"})
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if res.User.ID != signup.User.ID || res.User.Name != "Bob" || res.Session.Token == "" {
		t.Fatalf("unexpected signin result: %+v", res)
	}

	if err := f.svc.Signout(ctx, res.Session.Token); err != nil {
		t.Fatalf("signout: %v", err)
	}
	if err := f.svc.Signout(ctx, res.Session.Token); err != nil {
		t.Fatalf("second signout must succeed: %v", err)
	}
	if _, err := f.svc.ResolveSession(ctx, res.Session.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected revoked token to be unauthorized, got %v", err)
	}

	if _, err := f.svc.Signin(ctx, ports.CredentialsInput{Email: "bob@b.com", Password: "nope"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Signin_OrphanIdentity(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	signup, _ := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	_ = f.users.Delete(ctx, signup.User.ID)
	_ = f.svc.Signout(ctx, signup.Token)

	if _, err := f.svc.Signin(ctx, ports.CredentialsInput{Email: "a@b.com", Password: "Abcdef12"}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expected orphan session revoked")
	}
}

func TestAuthService_UpdateProfile(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	alice, _ := f.svc.Signup(ctx, ports.SignupInput{Name: "Alice", Email: "alice@b.com", Password: "Abcdef12"})
	_, _ = f.svc.Signup(ctx, ports.SignupInput{Name: "Bob", Email: "bob@b.com", Password: "Abcdef12"})

	taken := "BOB@b.com"
	if _, err := f.svc.UpdateProfile(ctx, alice.User, domain.UserUpdate{Email: &taken}); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	name, email := "  Alice Liddell ", "liddell@b.com"
	updated, err := f.svc.UpdateProfile(ctx, alice.User, domain.UserUpdate{Name: &name, Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Alice Liddell" || updated.Email != "liddell@b.com" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	if _, err := f.svc.Login(ctx, ports.CredentialsInput{Email: "liddell@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("login with new email: %v", err)
	}
	if _, err := f.svc.Signin(ctx, ports.CredentialsInput{Email: "liddell@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("signin with new email: %v", err)
	}
}

func TestAuthService_UpdateProfile_VanishedRecord(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	res, _ := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	_ = f.users.Delete(ctx, res.User.ID)

	email := "new@b.com"
	if _, err := f.svc.UpdateProfile(ctx, res.User, domain.UserUpdate{Email: &email}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if id, _ := f.identities.FindByUID(ctx, res.User.ID); id.Email != "a@b.com" {
		t.Fatalf("expected identity email restored, got %q", id.Email)
	}
}

func TestAuthService_DeleteAccount(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	res, _ := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	if err := f.svc.DeleteAccount(ctx, res.User); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, res.User); err != nil {
		t.Fatalf("second delete must succeed: %v", err)
	}

	if _, err := f.svc.ResolveSession(ctx, res.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected token of deleted account to be unauthorized, got %v", err)
	}
	if _, err := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("email should be free again: %v", err)
	}
}

func TestAuthService_WatchSession(t *testing.T) {
	f := newFixture(t, memory.NewUserRepository())
	ctx := context.Background()

	res, _ := f.svc.Signup(ctx, ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"})
	sub, err := f.svc.WatchSession(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Unsubscribe()

	_ = f.svc.Signout(ctx, res.Token)

	select {
	case ev := <-sub.Events():
		if ev.Type != domain.SessionSignedOut || ev.UID != res.User.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no signed_out event")
	}
}

type countingProvider struct {
	ports.IdentityProvider
	verifyCalls int
}

func (c *countingProvider) VerifyPassword(ctx context.Context, uid, password string) error {
	c.verifyCalls++
	return c.IdentityProvider.VerifyPassword(ctx, uid, password)
}

func TestAuthService_Login_UnknownEmailStillComparesHash(t *testing.T) {
	sessions := memory.NewSessionStore()
	inner, err := identity.NewProvider(memory.NewIdentityRepository(), sessions, sessions, identity.Config{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	provider := &countingProvider{IdentityProvider: inner}
	svc := NewAuthService(memory.NewUserRepository(), provider, nil, zerolog.Nop())

	_, err = svc.Login(context.Background(), ports.CredentialsInput{Email: "ghost@b.com", Password: "Abcdef12"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if provider.verifyCalls != 1 {
		t.Fatalf("expected one hash comparison for an unknown email, got %d", provider.verifyCalls)
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

func TestAuthService_Signup_RetryAfterSessionStoreOutage(t *testing.T) {
	sessions := &flakySessionStore{SessionStore: memory.NewSessionStore(), failSave: true}
	provider, err := identity.NewProvider(memory.NewIdentityRepository(), sessions, sessions, identity.Config{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	users := memory.NewUserRepository()
	svc := NewAuthService(users, provider, nil, zerolog.Nop())
	ctx := context.Background()
	in := ports.SignupInput{Email: "a@b.com", Password: "Abcdef12"}

	if _, err := svc.Signup(ctx, in); err == nil {
		t.Fatalf("expected signup to fail while the session store is down")
	}

	sessions.failSave = false
	if _, err := svc.Signup(ctx, in); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if _, err := svc.Login(ctx, ports.CredentialsInput{Email: "a@b.com", Password: "Abcdef12"}); err != nil {
		t.Fatalf("login after retry: %v", err)
	}
	if n, _ := users.Count(ctx); n != 1 {
		t.Fatalf("expected one user, got %d", n)
	}
}
