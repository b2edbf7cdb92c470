package app

import (
	"context"
	"net/mail"
	"strings"

	"cooksmart/internal/supa"
)

// Credentials is the email/password sign-in payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpInput registers a new account.
type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func validEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// SignUp registers the account with the platform's auth API.
func (a *App) SignUp(ctx context.Context, in SignUpInput) (supa.Session, error) {
	if !validEmail(in.Email) {
		return supa.Session{}, validationErr("invalid email")
	}
	if len(in.Password) < 8 {
		return supa.Session{}, validationErr("password must be at least 8 characters")
	}
	var sess supa.Session
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		var innerErr error
		sess, innerErr = c.SignUp(ctx, in.Email, in.Password, strings.TrimSpace(in.DisplayName))
		return innerErr
	})
	return sess, err
}

// SignIn exchanges credentials for a session.
func (a *App) SignIn(ctx context.Context, in Credentials) (supa.Session, error) {
	if !validEmail(in.Email) || in.Password == "" {
		return supa.Session{}, validationErr("email and password are required")
	}
	var sess supa.Session
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		var innerErr error
		sess, innerErr = c.SignInWithPassword(ctx, in.Email, in.Password)
		return innerErr
	})
	return sess, err
}

// Refresh trades a refresh token for a fresh session.
func (a *App) Refresh(ctx context.Context, refreshToken string) (supa.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return supa.Session{}, validationErr("refresh token is required")
	}
	var sess supa.Session
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		var innerErr error
		sess, innerErr = c.RefreshSession(ctx, refreshToken)
		return innerErr
	})
	return sess, err
}

// SignOut revokes the session on the platform.
func (a *App) SignOut(ctx context.Context, token string) error {
	return a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.SignOut(ctx, token)
	})
}

// OAuthURL builds the provider redirect URL for browser-driven sign-in.
func (a *App) OAuthURL(provider, redirectTo string) string {
	return a.Client().OAuthURL(provider, redirectTo)
}
