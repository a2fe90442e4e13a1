package mealplans

import (
	"sort"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/grocery"
	"github.com/fdg312/meal-planner/internal/nutrition"
	"github.com/fdg312/meal-planner/internal/recipes"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
)

// Meal types.
const (
	Breakfast = "Breakfast"
	Lunch     = "Lunch"
	Dinner    = "Dinner"
	Snack     = "Snack"
)

// MealTypes in display order.
var MealTypes = []string{Breakfast, Lunch, Dinner, Snack}

// ParseMealType canonicalizes a meal type, case-insensitively. "Snacks" is accepted for Snack.
func ParseMealType(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "snacks") {
		return Snack, true
	}
	for _, mt := range MealTypes {
		if strings.EqualFold(s, mt) {
			return mt, true
		}
	}
	return "", false
}

// Fill is the observational state of a plan.
type Fill string

const (
	FillEmpty   Fill = "empty"
	FillPartial Fill = "partial"
	FillFull    Fill = "full"
)

// Plan is the meal plan aggregate: one user, one week, at most one entry per
// (day, meal type). Every mutation recomputes the totals.
type Plan struct {
	storage.MealPlan
}

func NewPlan(userID string, date time.Time) *Plan {
	start := weekdate.WeekStart(date)
	return &Plan{MealPlan: storage.MealPlan{
		UserID:    userID,
		WeekID:    weekdate.WeekID(start),
		WeekStart: start,
		WeekEnd:   weekdate.WeekEnd(start),
		IsActive:  true,
	}}
}

// FromRecord wraps a loaded record, recomputing its totals.
func FromRecord(rec storage.MealPlan) *Plan {
	p := &Plan{MealPlan: rec}
	p.RecomputeTotals()
	return p
}

// Contains reports whether date falls inside the plan's week.
func (p *Plan) Contains(date time.Time) bool {
	return weekdate.InRange(date, p.WeekStart, p.WeekEnd)
}

func (p *Plan) find(dateKey, mealType string) int {
	for i, e := range p.Entries {
		if e.DateKey == dateKey && e.MealType == mealType {
			return i
		}
	}
	return -1
}

// AddMeal snapshots recipe into the (date, mealType) slot, replacing any entry
// already there. Servings of 0 means 1.
func (p *Plan) AddMeal(date time.Time, mealType string, recipe storage.Recipe, servings int, notes string) (storage.MealEntry, error) {
	mt, ok := ParseMealType(mealType)
	if !ok {
		return storage.MealEntry{}, apperr.Validation("meal_type must be one of Breakfast, Lunch, Dinner, Snack")
	}
	if servings == 0 {
		servings = 1
	}
	if servings < 1 {
		return storage.MealEntry{}, apperr.Validation("servings must be at least 1")
	}
	if !p.Contains(date) {
		return storage.MealEntry{}, apperr.Validation("date %s is outside week %s", weekdate.DateKey(date), p.WeekID)
	}

	recipeID := recipe.ID
	if recipeID == "" {
		recipeID = recipe.MealDBID
	}
	key := weekdate.DateKey(date)
	entry := storage.MealEntry{
		DateKey:  key,
		Date:     time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
		MealType: mt,
		RecipeID: recipeID,
		Snapshot: recipes.Snapshot(recipe),
		Servings: servings,
		Notes:    strings.TrimSpace(notes),
	}

	if i := p.find(key, mt); i >= 0 {
		p.Entries = append(p.Entries[:i:i], p.Entries[i+1:]...)
	}
	p.Entries = append(p.Entries, entry)
	p.sortEntries()
	p.RecomputeTotals()
	return entry, nil
}

// RemoveMeal drops the (date, mealType) entry. Absent entries are not an error.
func (p *Plan) RemoveMeal(date time.Time, mealType string) bool {
	mt, ok := ParseMealType(mealType)
	if !ok {
		return false
	}
	removed := false
	if i := p.find(weekdate.DateKey(date), mt); i >= 0 {
		p.Entries = append(p.Entries[:i:i], p.Entries[i+1:]...)
		removed = true
	}
	p.RecomputeTotals()
	return removed
}

// SetCompleted flags the (date, mealType) entry as eaten or not.
func (p *Plan) SetCompleted(date time.Time, mealType string, completed bool) error {
	mt, ok := ParseMealType(mealType)
	if !ok {
		return apperr.Validation("meal_type must be one of Breakfast, Lunch, Dinner, Snack")
	}
	i := p.find(weekdate.DateKey(date), mt)
	if i < 0 {
		return apperr.NotFound("no %s planned on %s", mt, weekdate.DateKey(date))
	}
	p.Entries[i].Completed = completed
	return nil
}

func (p *Plan) UpdateNotes(notes string) {
	p.Notes = strings.TrimSpace(notes)
}

func (p *Plan) MealsForDate(date time.Time) []storage.MealEntry {
	key := weekdate.DateKey(date)
	var out []storage.MealEntry
	for _, e := range p.Entries {
		if e.DateKey == key {
			out = append(out, e)
		}
	}
	return out
}

// RecomputeTotals derives TotalCalories from scratch. Entries carry no price,
// so TotalCost is always 0.
func (p *Plan) RecomputeTotals() {
	p.TotalCalories = nutrition.ForDate(p.Entries, nil).Calories
	p.TotalCost = 0
}

func (p *Plan) GroceryList(start, end *time.Time) []string {
	return grocery.FlatList(p.Entries, start, end)
}

func (p *Plan) NutritionSummary(date *time.Time) storage.Nutrition {
	return nutrition.ForDate(p.Entries, date)
}

func (p *Plan) WeeklyNutrition() nutrition.WeeklySummary {
	return nutrition.Weekly(p.Entries, p.WeekStart)
}

func (p *Plan) Fill() Fill {
	first, last := weekdate.DateKey(p.WeekStart), weekdate.DateKey(p.WeekEnd)
	slots := make(map[string]bool)
	for _, e := range p.Entries {
		if e.DateKey >= first && e.DateKey <= last {
			slots[e.DateKey+"|"+e.MealType] = true
		}
	}
	switch {
	case len(slots) == 0:
		return FillEmpty
	case len(slots) >= 7*len(MealTypes):
		return FillFull
	default:
		return FillPartial
	}
}

// sortEntries keeps entries ordered by day then meal type, so stored documents
// and responses are stable.
func (p *Plan) sortEntries() {
	rank := func(mt string) int {
		for i, m := range MealTypes {
			if m == mt {
				return i
			}
		}
		return len(MealTypes)
	}
	sort.SliceStable(p.Entries, func(i, j int) bool {
		a, b := p.Entries[i], p.Entries[j]
		if a.DateKey != b.DateKey {
			return a.DateKey < b.DateKey
		}
		return rank(a.MealType) < rank(b.MealType)
	})
}
