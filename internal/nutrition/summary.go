// Package nutrition sums snapshot nutrition over meal entries.
package nutrition

import (
	"math"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
)

type DayNutrition struct {
	Date      string            `json:"date"`
	Nutrition storage.Nutrition `json:"nutrition"`
	Meals     int               `json:"meals"`
}

type WeeklySummary struct {
	DailyNutrition [7]DayNutrition   `json:"daily_nutrition"`
	WeeklyTotal    storage.Nutrition `json:"weekly_total"`
}

// ForDate sums nutrition × servings over entries on date, or over all entries when date is nil.
func ForDate(entries []storage.MealEntry, date *time.Time) storage.Nutrition {
	var key string
	if date != nil {
		key = weekdate.DateKey(*date)
	}

	var total storage.Nutrition
	for _, e := range entries {
		if key != "" && e.DateKey != key {
			continue
		}
		total = total.Add(entryNutrition(e))
	}
	return total
}

// Weekly summarizes the seven days starting at weekStart. WeeklyTotal covers
// every entry, including ones outside those days.
func Weekly(entries []storage.MealEntry, weekStart time.Time) WeeklySummary {
	var s WeeklySummary
	for i, d := range weekdate.WeekDates(weekStart) {
		key := weekdate.DateKey(d)
		day := DayNutrition{Date: key}
		for _, e := range entries {
			if e.DateKey == key {
				day.Nutrition = day.Nutrition.Add(entryNutrition(e))
				day.Meals++
			}
		}
		s.DailyNutrition[i] = day
	}
	s.WeeklyTotal = ForDate(entries, nil)
	return s
}

// AverageDaily divides the weekly total over the days that have meals.
func AverageDaily(s WeeklySummary) storage.Nutrition {
	days := 0
	for _, d := range s.DailyNutrition {
		if d.Meals > 0 {
			days++
		}
	}
	if days == 0 {
		return storage.Nutrition{}
	}
	avg := s.WeeklyTotal.Scale(1 / float64(days))
	return storage.Nutrition{
		Calories: math.Round(avg.Calories),
		Protein:  math.Round(avg.Protein),
		Fat:      math.Round(avg.Fat),
		Carbs:    math.Round(avg.Carbs),
	}
}

func entryNutrition(e storage.MealEntry) storage.Nutrition {
	servings := e.Servings
	if servings < 1 {
		servings = 1
	}
	return finite(e.Snapshot.Nutrition).Scale(float64(servings))
}

// finite zeroes malformed values so totals stay computable.
func finite(n storage.Nutrition) storage.Nutrition {
	fix := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	}
	return storage.Nutrition{Calories: fix(n.Calories), Protein: fix(n.Protein), Fat: fix(n.Fat), Carbs: fix(n.Carbs)}
}
