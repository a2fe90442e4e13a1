package mealplans

import (
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/nutrition"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
)

type MealEntryDTO struct {
	ID        string                 `json:"id"`
	Date      string                 `json:"date"`
	MealType  string                 `json:"meal_type"`
	RecipeID  string                 `json:"recipe_id"`
	Recipe    storage.RecipeSnapshot `json:"recipe"`
	Servings  int                    `json:"servings"`
	Notes     string                 `json:"notes,omitempty"`
	Completed bool                   `json:"completed"`
}

type MealPlanDTO struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	WeekID                string         `json:"week_id"`
	WeekStart             string         `json:"week_start"`
	WeekEnd               string         `json:"week_end"`
	Meals                 []MealEntryDTO `json:"meals"`
	Notes                 string         `json:"notes,omitempty"`
	IsActive              bool           `json:"is_active"`
	TotalCalories         float64        `json:"total_calories"`
	TotalCost             float64        `json:"total_cost"`
	ShoppingListGenerated bool           `json:"shopping_list_generated"`
	LastShoppingListAt    *time.Time     `json:"last_shopping_list_at,omitempty"`
	Fill                  Fill           `json:"fill"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func ToDTO(p *Plan) MealPlanDTO {
	meals := make([]MealEntryDTO, len(p.Entries))
	for i, e := range p.Entries {
		meals[i] = MealEntryDTO{
			ID:        e.ID,
			Date:      e.DateKey,
			MealType:  e.MealType,
			RecipeID:  e.RecipeID,
			Recipe:    e.Snapshot,
			Servings:  e.Servings,
			Notes:     e.Notes,
			Completed: e.Completed,
		}
		if meals[i].Recipe.Ingredients == nil {
			meals[i].Recipe.Ingredients = []string{}
		}
	}
	return MealPlanDTO{
		ID:                    p.ID,
		UserID:                p.UserID,
		WeekID:                p.WeekID,
		WeekStart:             weekdate.DateKey(p.WeekStart),
		WeekEnd:               weekdate.DateKey(p.WeekEnd),
		Meals:                 meals,
		Notes:                 p.Notes,
		IsActive:              p.IsActive,
		TotalCalories:         p.TotalCalories,
		TotalCost:             p.TotalCost,
		ShoppingListGenerated: p.ShoppingListGenerated,
		LastShoppingListAt:    p.LastShoppingListAt,
		Fill:                  p.Fill(),
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// WeekResponse is the calendar view of one week.
type WeekResponse struct {
	MealPlan         MealPlanDTO             `json:"meal_plan"`
	Week             weekdate.Week           `json:"week"`
	Nutrition        nutrition.WeeklySummary `json:"nutrition"`
	AverageDaily     storage.Nutrition       `json:"average_daily"`
	PreviousWeekDate string                  `json:"previous_week"`
	NextWeekDate     string                  `json:"next_week"`
}

type AddMealRequest struct {
	Date     string `json:"date"`
	MealType string `json:"meal_type"`
	RecipeID string `json:"recipe_id"`
	Servings int    `json:"servings"`
	Notes    string `json:"notes"`
}

// Validate checks the request shape before any lookup or mutation.
func (r *AddMealRequest) Validate(loc *time.Location) (time.Time, error) {
	var v apperr.Validator
	var date time.Time
	if strings.TrimSpace(r.Date) == "" {
		v.Check(false, "date is required")
	} else {
		d, err := weekdate.ParseDateKey(r.Date, loc)
		v.Check(err == nil, "date must be YYYY-MM-DD")
		date = d
	}
	if strings.TrimSpace(r.MealType) == "" {
		v.Check(false, "meal_type is required")
	} else {
		_, ok := ParseMealType(r.MealType)
		v.Check(ok, "meal_type must be one of Breakfast, Lunch, Dinner, Snack")
	}
	v.Check(strings.TrimSpace(r.RecipeID) != "", "recipe_id is required")
	v.Check(r.Servings >= 0, "servings must not be negative")
	v.Check(len(r.Notes) <= 500, "notes must be at most 500 characters")
	return date, v.Err()
}

type AddMealResponse struct {
	Message  string       `json:"message"`
	Meal     MealEntryDTO `json:"meal"`
	MealPlan MealPlanDTO  `json:"meal_plan"`
}

type MealSlotRequest struct {
	Date     string `json:"date"`
	MealType string `json:"meal_type"`
}

func (r *MealSlotRequest) Validate(loc *time.Location) (time.Time, error) {
	var v apperr.Validator
	d, err := weekdate.ParseDateKey(strings.TrimSpace(r.Date), loc)
	v.Check(err == nil, "date must be YYYY-MM-DD")
	_, ok := ParseMealType(r.MealType)
	v.Check(ok, "meal_type must be one of Breakfast, Lunch, Dinner, Snack")
	return d, v.Err()
}

type SetCompletedRequest struct {
	MealSlotRequest
	Completed bool `json:"completed"`
}

type UpdatePlanRequest struct {
	Notes    *string `json:"notes"`
	IsActive *bool   `json:"is_active"`
}

func (r *UpdatePlanRequest) Validate() error {
	var v apperr.Validator
	v.Check(r.Notes != nil || r.IsActive != nil, "nothing to update")
	v.Check(r.Notes == nil || len(*r.Notes) <= 1000, "notes must be at most 1000 characters")
	return v.Err()
}

type ListResponse struct {
	MealPlans []MealPlanDTO `json:"meal_plans"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

type GroceryListResponse struct {
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Items        []string `json:"items"`
	IsEmpty      bool     `json:"is_empty"`
	MealPlanIDs  []string `json:"meal_plan_ids"`
	MealsCounted int      `json:"meals_counted"`
}
