package app

import (
	"context"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

// RecipeMatch is a pantry search hit: a recipe plus how many of its
// ingredients the caller already has.
type RecipeMatch struct {
	domain.Recipe
	MatchedCount     int `json:"matched_count"`
	TotalIngredients int `json:"total_ingredients"`
}

// SearchByIngredients asks the platform which recipes can be made from the
// given ingredient ids. An empty selection short-circuits to an empty
// result with no remote call.
func (a *App) SearchByIngredients(ctx context.Context, token string, ingredientIDs []string) ([]RecipeMatch, error) {
	ids := make([]string, 0, len(ingredientIDs))
	for _, id := range ingredientIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []RecipeMatch{}, nil
	}

	var matches []RecipeMatch
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		matches = nil
		return c.Rpc(ctx, token, "search_recipes_by_ingredients",
			map[string]any{"ingredient_ids": ids}, &matches)
	})
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []RecipeMatch{}
	}
	return matches, nil
}
