package recipes

import (
	"math"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/themealdb"
)

const (
	DefaultServings   = 4
	DefaultStaleAfter = 24 * time.Hour
)

// DietTagAllowList is the set of tags recognised in a payload's comma separated tags field.
var DietTagAllowList = []string{"Vegetarian", "Vegan", "Gluten-Free", "Keto", "Low-Carb", "High-Protein"}

// baseNutrition is the starting estimate for any recipe.
var baseNutrition = storage.Nutrition{Calories: 300, Protein: 15, Fat: 10, Carbs: 30}

// categoryAdjustments are added on top of the base for an exact category match.
var categoryAdjustments = map[string]storage.Nutrition{
	"Chicken":    {Calories: 150, Protein: 20, Fat: 5},
	"Beef":       {Calories: 200, Protein: 25, Fat: 10},
	"Seafood":    {Calories: 100, Protein: 25, Fat: 3},
	"Vegetarian": {Calories: 50, Protein: 5, Carbs: 20},
	"Vegan":      {Calories: 50, Protein: 5, Carbs: 20},
	"Dessert":    {Calories: 250, Fat: 15, Carbs: 40},
	"Pasta":      {Calories: 200, Carbs: 50},
}

// keywordAdjustments apply independently when any keyword occurs in the
// lower-cased ingredient text.
var keywordAdjustments = []struct {
	keywords []string
	delta    storage.Nutrition
}{
	{[]string{"cheese"}, storage.Nutrition{Calories: 80, Protein: 5, Fat: 6}},
	{[]string{"oil", "butter"}, storage.Nutrition{Calories: 100, Fat: 11}},
	{[]string{"rice", "pasta"}, storage.Nutrition{Calories: 150, Carbs: 30}},
}

// ParseIngredients walks all 20 slots in order. Empty ingredient slots are skipped.
func ParseIngredients(meal themealdb.Meal) []string {
	out := make([]string, 0, themealdb.MaxIngredients)
	for i := 0; i < themealdb.MaxIngredients; i++ {
		ingredient := strings.TrimSpace(meal.Ingredients[i])
		if ingredient == "" {
			continue
		}
		measure := strings.TrimSpace(meal.Measures[i])
		if measure != "" {
			out = append(out, measure+" "+ingredient)
		} else {
			out = append(out, ingredient)
		}
	}
	return out
}

// DetailedIngredients is ParseIngredients keeping name and measure apart.
func DetailedIngredients(meal themealdb.Meal) []storage.DetailedIngredient {
	out := make([]storage.DetailedIngredient, 0, themealdb.MaxIngredients)
	for i := 0; i < themealdb.MaxIngredients; i++ {
		ingredient := strings.TrimSpace(meal.Ingredients[i])
		if ingredient == "" {
			continue
		}
		out = append(out, storage.DetailedIngredient{
			Name:   ingredient,
			Amount: strings.TrimSpace(meal.Measures[i]),
		})
	}
	return out
}

func DietTags(category, tags string) []string {
	var out []string
	has := func(tag string) bool {
		for _, t := range out {
			if t == tag {
				return true
			}
		}
		return false
	}

	if category == "Vegetarian" || category == "Vegan" {
		out = append(out, category)
	}
	for _, tag := range SplitTags(tags) {
		for _, allowed := range DietTagAllowList {
			if tag == allowed && !has(tag) {
				out = append(out, tag)
			}
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

// SplitTags splits a comma separated field, trimming and dropping empty tokens.
func SplitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// EstimateNutrition is deterministic in (ingredients, category).
func EstimateNutrition(ingredients []string, category string) storage.Nutrition {
	n := baseNutrition
	if adj, ok := categoryAdjustments[category]; ok {
		n = n.Add(adj)
	}

	text := strings.ToLower(strings.Join(ingredients, " "))
	for _, rule := range keywordAdjustments {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				n = n.Add(rule.delta)
				break
			}
		}
	}

	return storage.Nutrition{
		Calories: math.Round(n.Calories),
		Protein:  math.Round(n.Protein),
		Fat:      math.Round(n.Fat),
		Carbs:    math.Round(n.Carbs),
	}
}

// SimpleIngredients returns the flat list, deriving it from the structured one
// ("amount unit name", or just the name) when the recipe has no flat list.
func SimpleIngredients(r storage.Recipe) []string {
	if len(r.Ingredients) > 0 {
		out := make([]string, len(r.Ingredients))
		copy(out, r.Ingredients)
		return out
	}
	out := make([]string, 0, len(r.DetailedIngredients))
	for _, ing := range r.DetailedIngredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			continue
		}
		amount, unit := strings.TrimSpace(ing.Amount), strings.TrimSpace(ing.Unit)
		if amount != "" && unit != "" {
			out = append(out, amount+" "+unit+" "+name)
		} else {
			out = append(out, name)
		}
	}
	return out
}

// IsStale is advisory. A zero maxAge means DefaultStaleAfter.
func IsStale(lastUpdated, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	return now.Sub(lastUpdated) > maxAge
}

// Normalize converts a raw meal into a recipe record. ID and CreatedAt are left
// for the caller.
func Normalize(meal themealdb.Meal, now time.Time) storage.Recipe {
	ingredients := ParseIngredients(meal)
	return storage.Recipe{
		MealDBID:            meal.ID,
		Title:               strings.TrimSpace(meal.Name),
		Ingredients:         ingredients,
		DetailedIngredients: DetailedIngredients(meal),
		Tags:                SplitTags(meal.Tags),
		Diet:                DietTags(meal.Category, meal.Tags),
		Instructions:        meal.Instructions,
		Category:            meal.Category,
		Area:                meal.Area,
		YoutubeURL:          meal.YouTube,
		Source:              meal.Source,
		Nutrition:           EstimateNutrition(ingredients, meal.Category),
		Servings:            DefaultServings,
		Image:               meal.Thumbnail,
		DataSource:          storage.SourceTheMealDB,
		IsPublic:            true,
		LastUpdated:         now,
	}
}

// Snapshot freezes the display fields of a recipe for a meal entry.
func Snapshot(r storage.Recipe) storage.RecipeSnapshot {
	var detailed []storage.DetailedIngredient
	if len(r.DetailedIngredients) > 0 {
		detailed = make([]storage.DetailedIngredient, len(r.DetailedIngredients))
		copy(detailed, r.DetailedIngredients)
	}
	return storage.RecipeSnapshot{
		Title:               r.Title,
		Image:               r.Image,
		Ingredients:         SimpleIngredients(r),
		DetailedIngredients: detailed,
		Nutrition:           sanitize(r.Nutrition),
		Category:            r.Category,
		Area:                r.Area,
	}
}

// sanitize zeroes negative or non-finite values so totals stay computable.
func sanitize(n storage.Nutrition) storage.Nutrition {
	fix := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	}
	return storage.Nutrition{
		Calories: fix(n.Calories),
		Protein:  fix(n.Protein),
		Fat:      fix(n.Fat),
		Carbs:    fix(n.Carbs),
	}
}
