package app

import (
	"context"
	"strings"
	"time"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

// SavedListing is one saved-recipes row with its recipe embedded.
type SavedListing struct {
	SavedAt time.Time     `json:"saved_at"`
	Recipe  domain.Recipe `json:"recipe"`
}

// IsRecipeSaved reports whether the user has saved the recipe. An empty
// result is an answer, not an error.
func (a *App) IsRecipeSaved(ctx context.Context, token, userID, recipeID string) (bool, error) {
	var row struct {
		ID string `json:"id"`
	}
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("saved_recipes").Select("id").
			Eq("user_id", userID).Eq("recipe_id", recipeID).
			Single().Get(ctx, token, &row)
	})
	if supa.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveRecipe inserts the join row. Saving an already-saved recipe is a
// no-op rather than an error, so repeated toggles cannot stack rows.
func (a *App) SaveRecipe(ctx context.Context, token, userID, recipeID string) error {
	if strings.TrimSpace(recipeID) == "" {
		return validationErr("recipe id is required")
	}
	saved, err := a.IsRecipeSaved(ctx, token, userID, recipeID)
	if err != nil {
		return err
	}
	if saved {
		return nil
	}
	return a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("saved_recipes").Insert(ctx, token, map[string]string{
			"user_id":   userID,
			"recipe_id": recipeID,
		}, nil)
	})
}

// UnsaveRecipe removes the join row; removing an absent row succeeds.
func (a *App) UnsaveRecipe(ctx context.Context, token, userID, recipeID string) error {
	if strings.TrimSpace(recipeID) == "" {
		return validationErr("recipe id is required")
	}
	return a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("saved_recipes").
			Eq("user_id", userID).Eq("recipe_id", recipeID).
			Delete(ctx, token)
	})
}

// ToggleSave flips the saved state and returns the new state.
func (a *App) ToggleSave(ctx context.Context, token, userID, recipeID string) (bool, error) {
	saved, err := a.IsRecipeSaved(ctx, token, userID, recipeID)
	if err != nil {
		return false, err
	}
	if saved {
		if err := a.UnsaveRecipe(ctx, token, userID, recipeID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := a.SaveRecipe(ctx, token, userID, recipeID); err != nil {
		return false, err
	}
	return true, nil
}

// ListSaved returns the user's saved recipes, most recently saved first.
func (a *App) ListSaved(ctx context.Context, token, userID string) ([]SavedListing, error) {
	var rows []SavedListing
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		rows = nil
		return c.From("saved_recipes").
			Select("saved_at,recipe:recipes(*)").
			Eq("user_id", userID).
			Order("saved_at", false).
			Get(ctx, token, &rows)
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []SavedListing{}
	}
	return rows, nil
}

// isSavedBySlug resolves the saved flag through the recipe's slug using an
// embedded inner join, so the detail page needs no second id lookup.
func (a *App) isSavedBySlug(ctx context.Context, token, userID, recipeSlug string) (bool, error) {
	var row struct {
		ID string `json:"id"`
	}
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("saved_recipes").Select("id,recipes!inner(slug)").
			Eq("user_id", userID).
			Eq("recipes.slug", recipeSlug).
			Single().Get(ctx, token, &row)
	})
	if supa.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
