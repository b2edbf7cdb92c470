package domain

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// IngredientCategory is the closed set of categories the admin UI offers.
type IngredientCategory string

const (
	CategoryVegetables  IngredientCategory = "vegetables"
	CategoryFruits      IngredientCategory = "fruits"
	CategoryMeat        IngredientCategory = "meat"
	CategoryFish        IngredientCategory = "fish"
	CategoryDairy       IngredientCategory = "dairy"
	CategoryGrains      IngredientCategory = "grains"
	CategoryLegumes     IngredientCategory = "legumes"
	CategoryNutsSeeds   IngredientCategory = "nuts_seeds"
	CategoryHerbsSpices IngredientCategory = "herbs_spices"
	CategoryOilsFats    IngredientCategory = "oils_fats"
	CategoryCondiments  IngredientCategory = "condiments"
	CategoryBaking      IngredientCategory = "baking"
	CategoryBeverages   IngredientCategory = "beverages"
	CategoryOther       IngredientCategory = "other"
)

// IngredientUnit is the closed set of measurement units a recipe line
// can carry.
type IngredientUnit string

var ingredientUnits = map[IngredientUnit]struct{}{
	// weight
	"g": {}, "kg": {}, "mg": {}, "oz": {}, "lb": {},
	// volume
	"ml": {}, "l": {}, "tsp": {}, "tbsp": {}, "cup": {},
	"fl oz": {}, "pint": {}, "quart": {}, "gallon": {},
	// count
	"piece": {}, "slice": {}, "clove": {}, "bunch": {},
	"handful": {}, "pinch": {}, "dash": {},
	// containers
	"can": {}, "jar": {}, "package": {}, "box": {}, "bag": {},
	// cooking
	"to taste": {}, "as needed": {}, "whole": {}, "half": {}, "quarter": {},
}

// Recipe mirrors a row in the platform's recipes table. Slug is derived
// from the title and unique; uniqueness is enforced server-side.
type Recipe struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	ImageURL    *string    `json:"image_url"`
	PrepTime    int        `json:"prep_time"`
	Servings    int        `json:"servings"`
	Difficulty  Difficulty `json:"difficulty"`
	AuthorID    string     `json:"author_id"`
	Steps       []string   `json:"steps,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Ingredient struct {
	ID        string             `json:"id"`
	NameBG    string             `json:"name_bg"`
	NameEN    string             `json:"name_en"`
	Category  IngredientCategory `json:"category"`
	CreatedAt time.Time          `json:"created_at"`
}

// RecipeIngredient is the recipe-to-ingredient join row. The set for a
// recipe is replaced wholesale on update, never patched incrementally.
type RecipeIngredient struct {
	ID           string         `json:"id,omitempty"`
	RecipeID     string         `json:"recipe_id"`
	IngredientID string         `json:"ingredient_id"`
	Quantity     string         `json:"quantity"`
	Unit         IngredientUnit `json:"unit"`
}

// IngredientDetail is a join row resolved against the ingredient names,
// as returned by the recipe detail RPC.
type IngredientDetail struct {
	ID       string         `json:"id"`
	NameBG   string         `json:"name_bg"`
	NameEN   string         `json:"name_en"`
	Quantity string         `json:"quantity"`
	Unit     IngredientUnit `json:"unit"`
}

type RecipeWithIngredients struct {
	Recipe
	Ingredients []IngredientDetail `json:"ingredients"`
}

type SavedRecipe struct {
	ID       string    `json:"id,omitempty"`
	UserID   string    `json:"user_id"`
	RecipeID string    `json:"recipe_id"`
	SavedAt  time.Time `json:"saved_at"`
}

// Profile shares its id with the auth identity. Role is the advisory
// authorization signal; row-level security is authoritative.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	Role        UserRole  `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is the auth identity as reported by the platform's auth API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseDifficulty validates a difficulty value from user input.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), true
	default:
		return "", false
	}
}

// ParseIngredientUnit validates a unit value from user input.
func ParseIngredientUnit(s string) (IngredientUnit, bool) {
	if _, ok := ingredientUnits[IngredientUnit(s)]; ok {
		return IngredientUnit(s), true
	}
	return "", false
}

// ParseIngredientCategory validates a category value from user input.
func ParseIngredientCategory(s string) (IngredientCategory, bool) {
	switch IngredientCategory(s) {
	case CategoryVegetables, CategoryFruits, CategoryMeat, CategoryFish,
		CategoryDairy, CategoryGrains, CategoryLegumes, CategoryNutsSeeds,
		CategoryHerbsSpices, CategoryOilsFats, CategoryCondiments,
		CategoryBaking, CategoryBeverages, CategoryOther:
		return IngredientCategory(s), true
	default:
		return "", false
	}
}
