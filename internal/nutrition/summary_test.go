package nutrition

import (
	"math"
	"testing"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
)

func meal(dateKey string, servings int, n storage.Nutrition) storage.MealEntry {
	return storage.MealEntry{DateKey: dateKey, Servings: servings, Snapshot: storage.RecipeSnapshot{Nutrition: n}}
}

func TestForDate(t *testing.T) {
	entries := []storage.MealEntry{
		meal("2024-01-01", 2, storage.Nutrition{Calories: 400, Protein: 20, Fat: 10, Carbs: 30}),
		meal("2024-01-02", 1, storage.Nutrition{Calories: 400, Protein: 20, Fat: 10, Carbs: 30}),
		meal("2024-01-02", 1, storage.Nutrition{Calories: 100}),
	}

	all := ForDate(entries, nil)
	if all != (storage.Nutrition{Calories: 1300, Protein: 60, Fat: 30, Carbs: 90}) {
		t.Errorf("unexpected total %+v", all)
	}

	d := time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)
	day := ForDate(entries, &d)
	if day != (storage.Nutrition{Calories: 500, Protein: 20, Fat: 10, Carbs: 30}) {
		t.Errorf("unexpected day total %+v", day)
	}
}

func TestForDateIgnoresMalformedValues(t *testing.T) {
	entries := []storage.MealEntry{
		meal("2024-01-01", 1, storage.Nutrition{Calories: math.NaN(), Protein: -5, Fat: math.Inf(1), Carbs: 12}),
		meal("2024-01-01", 0, storage.Nutrition{Calories: 100}),
	}
	got := ForDate(entries, nil)
	if got != (storage.Nutrition{Calories: 100, Carbs: 12}) {
		t.Errorf("expected malformed fields to count as 0, got %+v", got)
	}
}

func TestWeekly(t *testing.T) {
	start := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	entries := []storage.MealEntry{
		meal("2023-12-31", 1, storage.Nutrition{Calories: 300}),
		meal("2024-01-01", 2, storage.Nutrition{Calories: 400}),
		meal("2024-01-06", 1, storage.Nutrition{Calories: 200}),
	}

	s := Weekly(entries, start)
	if s.DailyNutrition[0].Date != "2023-12-31" || s.DailyNutrition[6].Date != "2024-01-06" {
		t.Errorf("unexpected days %s..%s", s.DailyNutrition[0].Date, s.DailyNutrition[6].Date)
	}
	if s.DailyNutrition[1].Nutrition.Calories != 800 || s.DailyNutrition[1].Meals != 1 {
		t.Errorf("unexpected Monday %+v", s.DailyNutrition[1])
	}
	if s.DailyNutrition[3].Nutrition.Calories != 0 {
		t.Errorf("expected empty Wednesday, got %+v", s.DailyNutrition[3])
	}
	if s.WeeklyTotal.Calories != 1300 {
		t.Errorf("expected weekly total 1300, got %v", s.WeeklyTotal.Calories)
	}
	if avg := AverageDaily(s); avg.Calories != 433 {
		t.Errorf("expected average 433, got %v", avg.Calories)
	}
	if again := Weekly(entries, start); again != s {
		t.Error("expected identical summaries for identical input")
	}
}

func TestAverageDailyEmpty(t *testing.T) {
	if got := AverageDaily(WeeklySummary{}); got != (storage.Nutrition{}) {
		t.Errorf("expected zero average, got %+v", got)
	}
}
