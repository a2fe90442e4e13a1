package mealplans

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/grocery"
	"github.com/fdg312/meal-planner/internal/storage"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tacos() storage.Recipe {
	return storage.Recipe{
		ID:          "r-tacos",
		Title:       "Tacos",
		Ingredients: []string{"Tortilla", "Egg"},
		Nutrition:   storage.Nutrition{Calories: 400, Protein: 20, Fat: 15, Carbs: 45},
	}
}

func TestNewPlanWeekBounds(t *testing.T) {
	p := NewPlan("u1", time.Date(2024, 1, 3, 13, 0, 0, 0, time.UTC))
	if p.WeekID != "2023-53" {
		t.Errorf("expected week id 2023-53, got %s", p.WeekID)
	}
	if !p.WeekStart.Equal(date(2023, 12, 31)) || !p.WeekEnd.Equal(date(2024, 1, 6)) {
		t.Errorf("unexpected bounds %v - %v", p.WeekStart, p.WeekEnd)
	}
	if len(p.Entries) != 0 || p.Fill() != FillEmpty {
		t.Errorf("expected empty plan, got %d entries", len(p.Entries))
	}
}

func TestAddMealTotals(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))

	if _, err := p.AddMeal(date(2024, 1, 1), Dinner, tacos(), 2, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.AddMeal(date(2024, 1, 2), Dinner, tacos(), 1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.TotalCalories != 1200 {
		t.Errorf("expected totalCalories 1200, got %v", p.TotalCalories)
	}
	if p.TotalCost != 0 {
		t.Errorf("expected totalCost 0, got %v", p.TotalCost)
	}

	p.TotalCost = 12.5
	p.RecomputeTotals()
	if p.TotalCost != 0 {
		t.Errorf("expected recompute to reset totalCost, got %v", p.TotalCost)
	}
}

func TestAddMealReplacesSlot(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	soup := storage.Recipe{ID: "r-soup", Title: "Soup", Nutrition: storage.Nutrition{Calories: 150}}

	p.AddMeal(date(2024, 1, 1), Dinner, tacos(), 1, "first")
	e, err := p.AddMeal(time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), "dinner", soup, 0, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(p.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(p.Entries))
	}
	if p.Entries[0].Snapshot.Title != "Soup" || p.Entries[0].Notes != "second" {
		t.Errorf("expected the new entry to replace the old one, got %+v", p.Entries[0])
	}
	if e.Servings != 1 || e.MealType != Dinner {
		t.Errorf("expected default servings and canonical meal type, got %+v", e)
	}
	if p.TotalCalories != 150 {
		t.Errorf("expected totalCalories 150, got %v", p.TotalCalories)
	}
}

func TestAddMealValidation(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))

	tests := []struct {
		name     string
		date     time.Time
		mealType string
		servings int
	}{
		{"unknown meal type", date(2024, 1, 1), "Brunch", 1},
		{"negative servings", date(2024, 1, 1), Lunch, -1},
		{"outside week", date(2024, 1, 7), Lunch, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.AddMeal(tt.date, tt.mealType, tacos(), tt.servings, "")
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(p.Entries) != 0 {
				t.Errorf("expected no mutation, got %d entries", len(p.Entries))
			}
		})
	}
}

func TestSnapshotIsFrozen(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	r := tacos()
	p.AddMeal(date(2024, 1, 1), Lunch, r, 1, "")

	r.Title = "Renamed"
	r.Ingredients[0] = "Changed"
	r.Nutrition.Calories = 9999

	snap := p.Entries[0].Snapshot
	if snap.Title != "Tacos" || snap.Ingredients[0] != "Tortilla" || snap.Nutrition.Calories != 400 {
		t.Errorf("expected snapshot to be unaffected by later edits, got %+v", snap)
	}
}

func TestSnapshotUsesStructuredIngredients(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	r := storage.Recipe{ID: "r", Title: "Pancakes", DetailedIngredients: []storage.DetailedIngredient{
		{Name: "Flour", Amount: "2", Unit: "cups"},
		{Name: "Egg"},
	}}
	p.AddMeal(date(2024, 1, 1), Breakfast, r, 1, "")

	want := []string{"2 cups Flour", "Egg"}
	if !reflect.DeepEqual(p.Entries[0].Snapshot.Ingredients, want) {
		t.Errorf("expected %v, got %v", want, p.Entries[0].Snapshot.Ingredients)
	}
}

func TestRemoveMeal(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	p.AddMeal(date(2024, 1, 1), Dinner, tacos(), 2, "")
	p.AddMeal(date(2024, 1, 2), Dinner, tacos(), 1, "")

	if !p.RemoveMeal(date(2024, 1, 1), Dinner) {
		t.Error("expected entry to be removed")
	}
	if p.TotalCalories != 400 {
		t.Errorf("expected totalCalories 400, got %v", p.TotalCalories)
	}
	if p.RemoveMeal(date(2024, 1, 1), Dinner) {
		t.Error("expected second removal to be a no-op")
	}
	if p.RemoveMeal(date(2024, 1, 2), Lunch) {
		t.Error("expected removal of an empty slot to be a no-op")
	}
	if len(p.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(p.Entries))
	}
}

func TestTotalsConsistencyAfterSequence(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 7))
	light := storage.Recipe{ID: "light", Title: "Salad", Nutrition: storage.Nutrition{Calories: 120}}

	p.AddMeal(date(2024, 1, 7), Breakfast, tacos(), 3, "")
	p.AddMeal(date(2024, 1, 8), Lunch, light, 2, "")
	p.AddMeal(date(2024, 1, 7), Breakfast, light, 1, "")
	p.RemoveMeal(date(2024, 1, 8), Lunch)
	p.AddMeal(date(2024, 1, 13), Snack, tacos(), 1, "")

	var want float64
	for _, e := range p.Entries {
		want += e.Snapshot.Nutrition.Calories * float64(e.Servings)
	}
	if p.TotalCalories != want || want != 520 {
		t.Errorf("expected totalCalories %v (520), got %v", want, p.TotalCalories)
	}
}

func TestMealsForDateAndOrdering(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	p.AddMeal(date(2024, 1, 2), Dinner, tacos(), 1, "")
	p.AddMeal(date(2024, 1, 1), Snack, tacos(), 1, "")
	p.AddMeal(date(2024, 1, 1), Breakfast, tacos(), 1, "")

	got := p.MealsForDate(time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC))
	if len(got) != 2 || got[0].MealType != Breakfast || got[1].MealType != Snack {
		t.Errorf("unexpected meals %+v", got)
	}
	if p.Entries[2].DateKey != "2024-01-02" {
		t.Errorf("expected entries ordered by day, got %+v", p.Entries)
	}
}

func TestGroceryListScenario(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	omelette := storage.Recipe{ID: "o", Title: "Omelette", Ingredients: []string{"Egg", "Cheese"}}
	cake := storage.Recipe{ID: "c", Title: "Cake", Ingredients: []string{"egg", "Flour"}}

	if got := p.GroceryList(nil, nil); !reflect.DeepEqual(got, []string{grocery.NoMealsPlaceholder}) {
		t.Errorf("expected placeholder for an empty plan, got %v", got)
	}

	p.AddMeal(date(2024, 1, 1), Breakfast, omelette, 1, "")
	p.AddMeal(date(2024, 1, 2), Dinner, cake, 2, "")

	got := p.GroceryList(nil, nil)
	want := []string{"Cheese", "Egg (needed 2 times)", "Flour (x2)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if again := p.GroceryList(nil, nil); !reflect.DeepEqual(got, again) {
		t.Error("expected identical output on repeated calls")
	}

	d := date(2024, 1, 2)
	if got := p.GroceryList(&d, &d); !reflect.DeepEqual(got, []string{"Egg (x2)", "Flour (x2)"}) {
		t.Errorf("unexpected single day list %v", got)
	}
}

func TestNutritionSummary(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	p.AddMeal(date(2024, 1, 1), Dinner, tacos(), 2, "")
	p.AddMeal(date(2024, 1, 2), Lunch, tacos(), 1, "")

	d := date(2024, 1, 1)
	if got := p.NutritionSummary(&d); got != (storage.Nutrition{Calories: 800, Protein: 40, Fat: 30, Carbs: 90}) {
		t.Errorf("unexpected day nutrition %+v", got)
	}
	weekly := p.WeeklyNutrition()
	if weekly.DailyNutrition[1].Nutrition.Calories != 800 || weekly.WeeklyTotal.Calories != 1200 {
		t.Errorf("unexpected weekly summary %+v", weekly)
	}
}

func TestFill(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 7))
	p.AddMeal(date(2024, 1, 7), Lunch, tacos(), 1, "")
	if p.Fill() != FillPartial {
		t.Errorf("expected partial, got %s", p.Fill())
	}
	for d := 7; d <= 13; d++ {
		for _, mt := range MealTypes {
			p.AddMeal(date(2024, 1, d), mt, tacos(), 1, "")
		}
	}
	if p.Fill() != FillFull {
		t.Errorf("expected full, got %s", p.Fill())
	}
}

func TestSetCompleted(t *testing.T) {
	p := NewPlan("u1", date(2024, 1, 1))
	p.AddMeal(date(2024, 1, 1), Dinner, tacos(), 1, "")

	if err := p.SetCompleted(date(2024, 1, 1), Dinner, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Entries[0].Completed {
		t.Error("expected entry to be completed")
	}
	if err := p.SetCompleted(date(2024, 1, 2), Dinner, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestParseMealType(t *testing.T) {
	for in, want := range map[string]string{"breakfast": Breakfast, " LUNCH ": Lunch, "Snacks": Snack, "snack": Snack} {
		got, ok := ParseMealType(in)
		if !ok || got != want {
			t.Errorf("ParseMealType(%q): expected %s, got %s (%v)", in, want, got, ok)
		}
	}
	if _, ok := ParseMealType("Brunch"); ok {
		t.Error("expected Brunch to be rejected")
	}
}
