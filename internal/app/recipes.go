package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
	"cooksmart/pkg/slug"
)

// Prep-time buckets offered by the listing filter.
const (
	PrepTimeUnder15 = "less_than_15"
	PrepTime15To30  = "15_to_30"
	PrepTime30To60  = "30_to_60"
	PrepTimeOver60  = "more_than_60"
)

// RecipeFilters narrow a recipe listing. PrepTime is one of the
// PrepTime* buckets, not a raw minute count.
type RecipeFilters struct {
	Search     string
	Difficulty string
	PrepTime   string
	AuthorID   string
	Limit      int
	Offset     int
}

// IngredientRef links one ingredient into a recipe.
type IngredientRef struct {
	IngredientID string `json:"ingredient_id"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
}

// RecipeInput is the payload for creating or updating a recipe.
type RecipeInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    *string         `json:"image_url"`
	PrepTime    int             `json:"prep_time"`
	Servings    int             `json:"servings"`
	Difficulty  string          `json:"difficulty"`
	Steps       []string        `json:"steps"`
	Ingredients []IngredientRef `json:"ingredients"`
}

// RecipeDetail is the composed recipe page payload.
type RecipeDetail struct {
	domain.RecipeWithIngredients
	Saved bool `json:"saved"`
}

func (in RecipeInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return validationErr("title is required")
	}
	if in.PrepTime < 0 {
		return validationErr("prep_time must be >= 0")
	}
	if in.Servings < 1 {
		return validationErr("servings must be >= 1")
	}
	if _, ok := domain.ParseDifficulty(in.Difficulty); !ok {
		return validationErr("unknown difficulty %q", in.Difficulty)
	}
	for i, ref := range in.Ingredients {
		if strings.TrimSpace(ref.IngredientID) == "" {
			return validationErr("ingredient %d is missing its id", i)
		}
		if _, ok := domain.ParseIngredientUnit(ref.Unit); !ok {
			return validationErr("unknown unit %q for ingredient %d", ref.Unit, i)
		}
	}
	return nil
}

// ListRecipes returns recipes matching the filters, newest first.
// Anonymous listings are served from the short-TTL cache when possible.
func (a *App) ListRecipes(ctx context.Context, token string, f RecipeFilters) ([]domain.Recipe, error) {
	if !validPrepTimeBucket(f.PrepTime) {
		return nil, validationErr("unknown prep_time bucket %q", f.PrepTime)
	}
	cacheKey := ""
	if token == "" {
		cacheKey = listCacheKey(f)
		var cached []domain.Recipe
		if a.cacheGet(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var recipes []domain.Recipe
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		q := c.From("recipes").Select("*")
		if f.Search != "" {
			q = q.Ilike("title", "%"+f.Search+"%")
		}
		if f.Difficulty != "" {
			q = q.Eq("difficulty", f.Difficulty)
		}
		switch f.PrepTime {
		case PrepTimeUnder15:
			q = q.Lt("prep_time", 15)
		case PrepTime15To30:
			q = q.Gte("prep_time", 15).Lte("prep_time", 30)
		case PrepTime30To60:
			q = q.Gte("prep_time", 30).Lte("prep_time", 60)
		case PrepTimeOver60:
			q = q.Gt("prep_time", 60)
		}
		if f.AuthorID != "" {
			q = q.Eq("author_id", f.AuthorID)
		}
		q = q.Order("created_at", false)
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}
		if f.Offset > 0 {
			q = q.Offset(f.Offset)
		}
		recipes = nil
		return q.Get(ctx, token, &recipes)
	})
	if err != nil {
		return nil, err
	}
	if recipes == nil {
		recipes = []domain.Recipe{}
	}
	if cacheKey != "" {
		a.cacheSet(ctx, cacheKey, recipes)
	}
	return recipes, nil
}

// GetRecipeBySlug loads the composed recipe page: the recipe with its
// ingredient details via the server-side procedure, and the caller's saved
// flag. The two remote calls run concurrently.
func (a *App) GetRecipeBySlug(ctx context.Context, token, userID, recipeSlug string) (RecipeDetail, error) {
	recipeSlug = strings.TrimSpace(recipeSlug)
	if recipeSlug == "" {
		return RecipeDetail{}, validationErr("slug is required")
	}

	var detail RecipeDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var raw json.RawMessage
		err := a.run(gctx, func(ctx context.Context, c *supa.Client) error {
			raw = nil
			return c.Rpc(ctx, token, "get_recipe_with_ingredients",
				map[string]string{"recipe_slug": recipeSlug}, &raw)
		})
		if supa.IsNoRows(err) {
			return fmt.Errorf("recipe %q: %w", recipeSlug, ErrNotFound)
		}
		if err != nil {
			return err
		}
		rwi, err := decodeRecipePayload(raw)
		if err != nil {
			return err
		}
		detail.RecipeWithIngredients = rwi
		return nil
	})
	if userID != "" {
		g.Go(func() error {
			saved, err := a.isSavedBySlug(gctx, token, userID, recipeSlug)
			if err != nil {
				// The saved flag is decoration on the page; the recipe
				// itself decides success.
				a.logger.Warn("saved flag lookup failed", "slug", recipeSlug, "error", err)
				return nil
			}
			detail.Saved = saved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RecipeDetail{}, err
	}
	if detail.ID == "" {
		return RecipeDetail{}, fmt.Errorf("recipe %q: %w", recipeSlug, ErrNotFound)
	}
	if detail.Ingredients == nil {
		detail.Ingredients = []domain.IngredientDetail{}
	}
	return detail, nil
}

// CreateRecipe writes the recipe row and then its ingredient links. The
// two writes are not atomic on the platform: when the second fails the
// recipe id is queued for background deletion and a PartialWriteError is
// returned, never a success.
func (a *App) CreateRecipe(ctx context.Context, token, authorID string, in RecipeInput) (domain.Recipe, error) {
	if err := in.validate(); err != nil {
		return domain.Recipe{}, err
	}

	row := map[string]any{
		"title":       strings.TrimSpace(in.Title),
		"slug":        slug.Make(in.Title),
		"description": in.Description,
		"image_url":   in.ImageURL,
		"prep_time":   in.PrepTime,
		"servings":    in.Servings,
		"difficulty":  in.Difficulty,
		"author_id":   authorID,
		"steps":       in.Steps,
	}
	var created []domain.Recipe
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		created = nil
		return c.From("recipes").Insert(ctx, token, row, &created)
	})
	if err != nil {
		return domain.Recipe{}, mapWriteError(err)
	}
	if len(created) != 1 {
		return domain.Recipe{}, fmt.Errorf("recipe insert returned %d rows", len(created))
	}
	recipe := created[0]

	if err := a.insertIngredientLinks(ctx, token, recipe.ID, in.Ingredients); err != nil {
		a.enqueueOrphan(ctx, recipe.ID, err)
		return domain.Recipe{}, &PartialWriteError{RecipeID: recipe.ID, Err: err}
	}

	a.invalidateListings(ctx)
	return recipe, nil
}

// UpdateRecipe patches the recipe row and replaces its ingredient links
// wholesale: delete everything for the recipe, insert the new set.
func (a *App) UpdateRecipe(ctx context.Context, token, recipeID string, in RecipeInput) (domain.Recipe, error) {
	if strings.TrimSpace(recipeID) == "" {
		return domain.Recipe{}, validationErr("recipe id is required")
	}
	if err := in.validate(); err != nil {
		return domain.Recipe{}, err
	}

	patch := map[string]any{
		"title":       strings.TrimSpace(in.Title),
		"slug":        slug.Make(in.Title),
		"description": in.Description,
		"image_url":   in.ImageURL,
		"prep_time":   in.PrepTime,
		"servings":    in.Servings,
		"difficulty":  in.Difficulty,
		"steps":       in.Steps,
	}
	var updated []domain.Recipe
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		updated = nil
		return c.From("recipes").Eq("id", recipeID).Update(ctx, token, patch, &updated)
	})
	if err != nil {
		return domain.Recipe{}, mapWriteError(err)
	}
	if len(updated) == 0 {
		return domain.Recipe{}, fmt.Errorf("recipe %s: %w", recipeID, ErrNotFound)
	}

	err = a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("recipe_ingredients").Eq("recipe_id", recipeID).Delete(ctx, token)
	})
	if err != nil {
		return domain.Recipe{}, err
	}
	if err := a.insertIngredientLinks(ctx, token, recipeID, in.Ingredients); err != nil {
		return domain.Recipe{}, err
	}

	a.invalidateListings(ctx)
	return updated[0], nil
}

// DeleteRecipe removes a recipe; the platform cascades the ingredient
// links and saved rows.
func (a *App) DeleteRecipe(ctx context.Context, token, recipeID string) error {
	if strings.TrimSpace(recipeID) == "" {
		return validationErr("recipe id is required")
	}
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("recipes").Eq("id", recipeID).Delete(ctx, token)
	})
	if err != nil {
		return err
	}
	a.invalidateListings(ctx)
	return nil
}

// RemoveRecipeRow deletes a recipe row without an end-user session. Used
// by the orphan cleanup worker.
func (a *App) RemoveRecipeRow(ctx context.Context, recipeID string) error {
	return a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("recipes").Eq("id", recipeID).Delete(ctx, "")
	})
}

func (a *App) insertIngredientLinks(ctx context.Context, token, recipeID string, refs []IngredientRef) error {
	if len(refs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, map[string]any{
			"recipe_id":     recipeID,
			"ingredient_id": ref.IngredientID,
			"quantity":      ref.Quantity,
			"unit":          ref.Unit,
		})
	}
	return a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("recipe_ingredients").Insert(ctx, token, rows, nil)
	})
}

func (a *App) enqueueOrphan(ctx context.Context, recipeID string, cause error) {
	if a.orphans == nil {
		a.logger.Error("orphaned recipe left behind, no cleanup queue configured",
			"recipe_id", recipeID, "error", cause)
		return
	}
	if _, err := a.orphans.Enqueue(ctx, recipeID, cause.Error()); err != nil {
		a.logger.Error("failed to enqueue orphaned recipe", "recipe_id", recipeID, "error", err)
	}
}

func mapWriteError(err error) error {
	var apiErr *supa.APIError
	if errors.As(err, &apiErr) && apiErr.Status == 409 {
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	}
	return err
}

// decodeRecipePayload accepts both shapes the detail procedure has
// shipped: the nested {recipe: {...}, ingredients: [...]} envelope and
// the older flat row with an ingredients field.
func decodeRecipePayload(raw json.RawMessage) (domain.RecipeWithIngredients, error) {
	var envelope struct {
		Recipe      *domain.Recipe            `json:"recipe"`
		Ingredients []domain.IngredientDetail `json:"ingredients"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Recipe != nil {
		return domain.RecipeWithIngredients{
			Recipe:      *envelope.Recipe,
			Ingredients: envelope.Ingredients,
		}, nil
	}
	var flat domain.RecipeWithIngredients
	if err := json.Unmarshal(raw, &flat); err != nil {
		return domain.RecipeWithIngredients{}, fmt.Errorf("decode recipe payload: %w", err)
	}
	return flat, nil
}

func validPrepTimeBucket(bucket string) bool {
	switch bucket {
	case "", PrepTimeUnder15, PrepTime15To30, PrepTime30To60, PrepTimeOver60:
		return true
	default:
		return false
	}
}

func listCacheKey(f RecipeFilters) string {
	return "recipes:" + strings.Join([]string{
		f.Search,
		f.Difficulty,
		f.PrepTime,
		f.AuthorID,
		strconv.Itoa(f.Limit),
		strconv.Itoa(f.Offset),
	}, "|")
}
