package app

import (
	"context"
	"fmt"
	"strings"

	"cooksmart/internal/supa"
	"cooksmart/pkg/domain"
)

// IngredientInput is the payload for creating or updating an ingredient.
type IngredientInput struct {
	NameBG   string `json:"name_bg"`
	NameEN   string `json:"name_en"`
	Category string `json:"category"`
}

func (in IngredientInput) validate() error {
	if strings.TrimSpace(in.NameBG) == "" {
		return validationErr("name_bg is required")
	}
	if strings.TrimSpace(in.NameEN) == "" {
		return validationErr("name_en is required")
	}
	if _, ok := domain.ParseIngredientCategory(in.Category); !ok {
		return validationErr("unknown category %q", in.Category)
	}
	return nil
}

// ListIngredients returns all ingredients ordered by Bulgarian name.
// Anonymous listings are cache-backed like recipe listings.
func (a *App) ListIngredients(ctx context.Context, token string) ([]domain.Ingredient, error) {
	const cacheKey = "ingredients:all"
	if token == "" {
		var cached []domain.Ingredient
		if a.cacheGet(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var ingredients []domain.Ingredient
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		ingredients = nil
		return c.From("ingredients").Select("*").Order("name_bg", true).Get(ctx, token, &ingredients)
	})
	if err != nil {
		return nil, err
	}
	if ingredients == nil {
		ingredients = []domain.Ingredient{}
	}
	if token == "" {
		a.cacheSet(ctx, cacheKey, ingredients)
	}
	return ingredients, nil
}

// GetIngredient loads one ingredient by id.
func (a *App) GetIngredient(ctx context.Context, token, id string) (domain.Ingredient, error) {
	var ingredient domain.Ingredient
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("ingredients").Select("*").Eq("id", id).Single().Get(ctx, token, &ingredient)
	})
	if supa.IsNoRows(err) {
		return domain.Ingredient{}, fmt.Errorf("ingredient %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Ingredient{}, err
	}
	return ingredient, nil
}

// SearchIngredients matches either name against a case-insensitive pattern.
func (a *App) SearchIngredients(ctx context.Context, token, query string) ([]domain.Ingredient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.ListIngredients(ctx, token)
	}
	pattern := "%" + query + "%"
	var ingredients []domain.Ingredient
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		ingredients = nil
		return c.From("ingredients").Select("*").
			Or("name_bg.ilike."+pattern+",name_en.ilike."+pattern).
			Order("name_bg", true).
			Get(ctx, token, &ingredients)
	})
	if err != nil {
		return nil, err
	}
	if ingredients == nil {
		ingredients = []domain.Ingredient{}
	}
	return ingredients, nil
}

// CreateIngredient adds an ingredient after an advisory case-insensitive
// duplicate check. The check races concurrent creates; the platform's
// unique constraint is the authoritative gate and maps to ErrConflict.
func (a *App) CreateIngredient(ctx context.Context, token string, in IngredientInput) (domain.Ingredient, error) {
	if err := in.validate(); err != nil {
		return domain.Ingredient{}, err
	}
	nameBG := strings.TrimSpace(in.NameBG)

	var existing []domain.Ingredient
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		existing = nil
		return c.From("ingredients").Select("id").Ilike("name_bg", nameBG).Limit(1).Get(ctx, token, &existing)
	})
	if err != nil {
		return domain.Ingredient{}, err
	}
	if len(existing) > 0 {
		return domain.Ingredient{}, fmt.Errorf("%w: ingredient %q", ErrConflict, nameBG)
	}

	var created []domain.Ingredient
	err = a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		created = nil
		return c.From("ingredients").Insert(ctx, token, map[string]string{
			"name_bg":  nameBG,
			"name_en":  strings.TrimSpace(in.NameEN),
			"category": in.Category,
		}, &created)
	})
	if err != nil {
		return domain.Ingredient{}, mapWriteError(err)
	}
	if len(created) != 1 {
		return domain.Ingredient{}, fmt.Errorf("ingredient insert returned %d rows", len(created))
	}
	a.invalidateListings(ctx)
	return created[0], nil
}

// UpdateIngredient patches names and category.
func (a *App) UpdateIngredient(ctx context.Context, token, id string, in IngredientInput) (domain.Ingredient, error) {
	if err := in.validate(); err != nil {
		return domain.Ingredient{}, err
	}
	var updated []domain.Ingredient
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		updated = nil
		return c.From("ingredients").Eq("id", id).Update(ctx, token, map[string]string{
			"name_bg":  strings.TrimSpace(in.NameBG),
			"name_en":  strings.TrimSpace(in.NameEN),
			"category": in.Category,
		}, &updated)
	})
	if err != nil {
		return domain.Ingredient{}, mapWriteError(err)
	}
	if len(updated) == 0 {
		return domain.Ingredient{}, fmt.Errorf("ingredient %s: %w", id, ErrNotFound)
	}
	a.invalidateListings(ctx)
	return updated[0], nil
}

// DeleteIngredient removes an ingredient.
func (a *App) DeleteIngredient(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationErr("ingredient id is required")
	}
	err := a.run(ctx, func(ctx context.Context, c *supa.Client) error {
		return c.From("ingredients").Eq("id", id).Delete(ctx, token)
	})
	if err != nil {
		return err
	}
	a.invalidateListings(ctx)
	return nil
}
