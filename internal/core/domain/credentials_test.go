package domain

import (
	"errors"
	"testing"
)

func TestIsStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Abcdef12":  true,
		"abcdef12":  false,
		"ABCDEF12":  false,
		"Abcdefgh":  false,
		"Abc12":     false,
		"Abcdef12!": false,
		"Äbcdef12":  false,
	}
	for pw, want := range cases {
		if got := IsStrongPassword(pw); got != want {
			t.Errorf("IsStrongPassword(%q) = %v, want %v", pw, got, want)
		}
	}
}

func TestCredentials_CheckSignUp(t *testing.T) {
	if err := (Credentials{Email: "a@b.com", Password: "Abcdef12"}).CheckSignUp(); err != nil {
		t.Fatalf("expected valid credentials, got %v", err)
	}

	err := (Credentials{Email: "not-an-email", Password: "Abcdef12"}).CheckSignUp()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match")
	}

	err = (Credentials{Email: "a@b.com", Password: "short"}).CheckSignUp()
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestCredentials_CheckSignIn_AllowsWeakPassword(t *testing.T) {
	if err := (Credentials{Email: "a@b.com", Password: "x"}).CheckSignIn(); err != nil {
		t.Fatalf("sign-in must not apply the signup policy: %v", err)
	}
	if err := (Credentials{Email: "a@b.com"}).CheckSignIn(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty password, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestProviderFailure_MatchesBoth(t *testing.T) {
	err := ProviderFailure("sign up", ErrDuplicateEmail)
	if !errors.Is(err, ErrProvider) || !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected wrapped error to match ErrProvider and cause, got %v", err)
	}
}
