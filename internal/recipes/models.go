package recipes

import (
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
)

// allowedDiets is the set accepted on user-authored recipes.
var allowedDiets = map[string]bool{
	"Vegan": true, "Vegetarian": true, "Gluten-Free": true, "Keto": true,
	"Low-Carb": true, "High-Protein": true, "Quick": true, "Budget-Friendly": true,
}

type RecipeDTO struct {
	ID                  string                       `json:"id"`
	MealDBID            string                       `json:"mealdb_id,omitempty"`
	Title               string                       `json:"title"`
	Ingredients         []string                     `json:"ingredients"`
	DetailedIngredients []storage.DetailedIngredient `json:"detailed_ingredients,omitempty"`
	Tags                []string                     `json:"tags"`
	Diet                []string                     `json:"diet"`
	Instructions        string                       `json:"instructions,omitempty"`
	Category            string                       `json:"category,omitempty"`
	Area                string                       `json:"area,omitempty"`
	YoutubeURL          string                       `json:"youtube_url,omitempty"`
	Source              string                       `json:"source,omitempty"`
	Nutrition           storage.Nutrition            `json:"nutrition"`
	PrepTime            *int                         `json:"prep_time,omitempty"`
	CookTime            *int                         `json:"cook_time,omitempty"`
	TotalTime           *int                         `json:"total_time,omitempty"`
	Servings            int                          `json:"servings"`
	Image               string                       `json:"image,omitempty"`
	DataSource          string                       `json:"data_source"`
	CreatedBy           string                       `json:"created_by,omitempty"`
	IsPublic            bool                         `json:"is_public"`
	LastUpdated         time.Time                    `json:"last_updated"`
}

// ToDTO renders a recipe. Search results that were never stored use their
// TheMealDB id, which the lookup endpoints accept as well.
func ToDTO(r storage.Recipe) RecipeDTO {
	id := r.ID
	if id == "" {
		id = r.MealDBID
	}
	var total *int
	if r.PrepTime != nil || r.CookTime != nil {
		sum := 0
		if r.PrepTime != nil {
			sum += *r.PrepTime
		}
		if r.CookTime != nil {
			sum += *r.CookTime
		}
		total = &sum
	}
	return RecipeDTO{
		ID:                  id,
		MealDBID:            r.MealDBID,
		Title:               r.Title,
		Ingredients:         nonNil(SimpleIngredients(r)),
		DetailedIngredients: r.DetailedIngredients,
		Tags:                nonNil(r.Tags),
		Diet:                nonNil(r.Diet),
		Instructions:        r.Instructions,
		Category:            r.Category,
		Area:                r.Area,
		YoutubeURL:          r.YoutubeURL,
		Source:              r.Source,
		Nutrition:           r.Nutrition,
		PrepTime:            r.PrepTime,
		CookTime:            r.CookTime,
		TotalTime:           total,
		Servings:            r.Servings,
		Image:               r.Image,
		DataSource:          r.DataSource,
		CreatedBy:           r.CreatedBy,
		IsPublic:            r.IsPublic,
		LastUpdated:         r.LastUpdated,
	}
}

func ToDTOs(rs []storage.Recipe) []RecipeDTO {
	out := make([]RecipeDTO, len(rs))
	for i, r := range rs {
		out[i] = ToDTO(r)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type SearchParams struct {
	Query      string
	Category   string
	Area       string
	Ingredient string
	Limit      int
}

type ListParams struct {
	Search   string
	Category string
	Area     string
	Diet     string
	Page     int
	Limit    int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

type ListResponse struct {
	Recipes    []RecipeDTO `json:"recipes"`
	Pagination Pagination  `json:"pagination"`
}

type SearchResponse struct {
	Recipes []RecipeDTO `json:"recipes"`
	Count   int         `json:"count"`
}

type CreateRecipeRequest struct {
	Title               string                       `json:"title"`
	Ingredients         []string                     `json:"ingredients"`
	DetailedIngredients []storage.DetailedIngredient `json:"detailed_ingredients"`
	Tags                []string                     `json:"tags"`
	Diet                []string                     `json:"diet"`
	Instructions        string                       `json:"instructions"`
	Category            string                       `json:"category"`
	Area                string                       `json:"area"`
	YoutubeURL          string                       `json:"youtube_url"`
	Source              string                       `json:"source"`
	Nutrition           *storage.Nutrition           `json:"nutrition"`
	PrepTime            *int                         `json:"prep_time"`
	CookTime            *int                         `json:"cook_time"`
	Servings            int                          `json:"servings"`
	Image               string                       `json:"image"`
	IsPublic            *bool                        `json:"is_public"`
}

func (r *CreateRecipeRequest) Validate() error {
	var v apperr.Validator
	v.Check(strings.TrimSpace(r.Title) != "", "title is required")
	v.Check(len(r.Title) <= 200, "title must be at most 200 characters")
	v.Check(len(r.Ingredients) > 0 || len(r.DetailedIngredients) > 0, "ingredients or detailed_ingredients is required")
	v.Check(r.Servings >= 0, "servings must not be negative")
	v.Check(r.PrepTime == nil || *r.PrepTime >= 0, "prep_time must not be negative")
	v.Check(r.CookTime == nil || *r.CookTime >= 0, "cook_time must not be negative")
	for _, d := range r.Diet {
		v.Check(allowedDiets[d], "unknown diet %q", d)
	}
	if r.Nutrition != nil {
		v.Add(validateNutrition(*r.Nutrition))
	}
	return v.Err()
}

type UpdateRecipeRequest struct {
	Title               *string                      `json:"title"`
	Ingredients         []string                     `json:"ingredients"`
	DetailedIngredients []storage.DetailedIngredient `json:"detailed_ingredients"`
	Tags                []string                     `json:"tags"`
	Diet                []string                     `json:"diet"`
	Instructions        *string                      `json:"instructions"`
	Category            *string                      `json:"category"`
	Area                *string                      `json:"area"`
	Nutrition           *storage.Nutrition           `json:"nutrition"`
	PrepTime            *int                         `json:"prep_time"`
	CookTime            *int                         `json:"cook_time"`
	Servings            *int                         `json:"servings"`
	Image               *string                      `json:"image"`
	IsPublic            *bool                        `json:"is_public"`
}

func (r *UpdateRecipeRequest) Validate() error {
	var v apperr.Validator
	if r.Title != nil {
		v.Check(strings.TrimSpace(*r.Title) != "", "title must not be empty")
		v.Check(len(*r.Title) <= 200, "title must be at most 200 characters")
	}
	v.Check(r.Servings == nil || *r.Servings >= 1, "servings must be at least 1")
	v.Check(r.PrepTime == nil || *r.PrepTime >= 0, "prep_time must not be negative")
	v.Check(r.CookTime == nil || *r.CookTime >= 0, "cook_time must not be negative")
	for _, d := range r.Diet {
		v.Check(allowedDiets[d], "unknown diet %q", d)
	}
	if r.Nutrition != nil {
		v.Add(validateNutrition(*r.Nutrition))
	}
	return v.Err()
}

func validateNutrition(n storage.Nutrition) error {
	var v apperr.Validator
	v.Check(n.Calories >= 0, "nutrition.calories must not be negative")
	v.Check(n.Protein >= 0, "nutrition.protein must not be negative")
	v.Check(n.Fat >= 0, "nutrition.fat must not be negative")
	v.Check(n.Carbs >= 0, "nutrition.carbs must not be negative")
	return v.Err()
}
