package supa

import (
	"context"
	"net/http"
	"net/url"

	"cooksmart/pkg/domain"
)

// Session is an authenticated platform session.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         domain.User `json:"user"`
}

// SignUp registers a new user; the display name travels as signup metadata
// so the platform's profile trigger can pick it up.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": displayName},
	}
	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/signup", "", nil, payload, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", nil, payload, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", nil, payload, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil, nil)
}

// GetUser returns the identity behind an access token. This is also the
// cheap probe used to detect a suspended connection: an invalid token is a
// definitive answer from the platform, a timeout is not.
func (c *Client) GetUser(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", token, nil, nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// OAuthURL builds the redirect URL for provider-based sign-in. The browser
// completes the flow against the platform directly.
func (c *Client) OAuthURL(provider, redirectTo string) string {
	v := url.Values{}
	v.Set("provider", provider)
	if redirectTo != "" {
		v.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + v.Encode()
}
