package session

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

type fakePlatform struct {
	user       domain.User
	userErr    error
	profile    domain.Profile
	profileErr error
}

func (f *fakePlatform) GetUser(context.Context, string) (domain.User, error) {
	if f.userErr != nil {
		return domain.User{}, f.userErr
	}
	return f.user, nil
}

func (f *fakePlatform) GetProfile(context.Context, string, string) (domain.Profile, error) {
	if f.profileErr != nil {
		return domain.Profile{}, f.profileErr
	}
	return f.profile, nil
}

func signToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("local"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validToken(t *testing.T) string {
	return signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

func TestVerifyResolvesUserAndProfile(t *testing.T) {
	platform := &fakePlatform{
		user:    domain.User{ID: "user-1", Email: "ana@example.com"},
		profile: domain.Profile{ID: "user-1", Role: domain.RoleAdmin},
	}
	v := NewVerifier(platform)

	identity, err := v.Verify(context.Background(), validToken(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.User.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", identity.User)
	}
	if !identity.IsAdmin() {
		t.Fatal("expected admin role from profile")
	}
}

func TestVerifyToleratesMissingProfile(t *testing.T) {
	platform := &fakePlatform{
		user:       domain.User{ID: "user-1"},
		profileErr: &supa.APIError{Status: 406, Message: "no rows", Code: supa.CodeNoRows},
	}
	v := NewVerifier(platform)

	identity, err := v.Verify(context.Background(), validToken(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Profile != nil {
		t.Fatal("expected nil profile")
	}
	if identity.Role() != domain.RoleUser {
		t.Fatalf("expected default user role, got %q", identity.Role())
	}
}

func TestVerifyToleratesProfileFetchFailure(t *testing.T) {
	platform := &fakePlatform{
		user:       domain.User{ID: "user-1"},
		profileErr: errors.New("network down"),
	}
	v := NewVerifier(platform)

	identity, err := v.Verify(context.Background(), validToken(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Profile != nil {
		t.Fatal("expected nil profile on fetch failure")
	}
	if identity.User.ID != "user-1" {
		t.Fatal("expected user to survive profile failure")
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewVerifier(&fakePlatform{})
	if _, err := v.Verify(context.Background(), "   "); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredTokenLocally(t *testing.T) {
	platform := &fakePlatform{userErr: errors.New("platform must not be called")}
	v := NewVerifier(platform)
	expired := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	if _, err := v.Verify(context.Background(), expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := NewVerifier(&fakePlatform{})
	if _, err := v.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyMapsPlatformRejection(t *testing.T) {
	platform := &fakePlatform{
		userErr: &supa.APIError{Status: 401, Message: "invalid JWT"},
	}
	v := NewVerifier(platform)
	if _, err := v.Verify(context.Background(), validToken(t)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
