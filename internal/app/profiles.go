package app

import (
	"context"
	"fmt"
	"strings"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

// ProfileInput carries the caller-editable profile fields. Nil pointers
// leave the stored value untouched.
type ProfileInput struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// GetProfile loads the profile row sharing the user's id.
func (a *App) GetProfile(ctx context.Context, token, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("profiles").Select("*").Eq("id", userID).Single().Get(ctx, token, &profile)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// UpdateProfile patches display name and avatar.
func (a *App) UpdateProfile(ctx context.Context, token, userID string, in ProfileInput) (domain.Profile, error) {
	patch := map[string]any{}
	if in.DisplayName != nil {
		if strings.TrimSpace(*in.DisplayName) == "" {
			return domain.Profile{}, validationErr("display_name cannot be blank")
		}
		patch["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.AvatarURL != nil {
		patch["avatar_url"] = *in.AvatarURL
	}
	if len(patch) == 0 {
		return domain.Profile{}, validationErr("nothing to update")
	}

	var updated []domain.Profile
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		updated = nil
		return c.From("profiles").Eq("id", userID).Update(ctx, token, patch, &updated)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	if len(updated) == 0 {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return updated[0], nil
}

// GetUser resolves the identity behind an access token; together with
// GetProfile this satisfies the session layer's platform surface.
func (a *App) GetUser(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		var innerErr error
		user, innerErr = c.GetUser(ctx, token)
		return innerErr
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Probe issues the cheapest possible platform query, used by the session
// monitor to detect a suspended connection.
func (a *App) Probe(ctx context.Context) error {
	var rows []struct {
		ID string `json:"id"`
	}
	c := a.Client()
	return c.From("ingredients").Select("id").Limit(1).Get(ctx, "", &rows)
}
