package grocery

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
)

const (
	NoMealsPlaceholder       = "No meals planned yet. Add some recipes to generate a grocery list!"
	NoIngredientsPlaceholder = "No ingredients found in planned meals. The recipes might not have ingredient data."
)

// Categories of grocery document items.
const (
	CategoryProduce   = "Produce"
	CategoryDairy     = "Dairy"
	CategoryMeat      = "Meat"
	CategoryPantry    = "Pantry"
	CategoryFrozen    = "Frozen"
	CategoryBeverages = "Beverages"
	CategoryOther     = "Other"
)

var categories = map[string]bool{
	CategoryProduce: true, CategoryDairy: true, CategoryMeat: true, CategoryPantry: true,
	CategoryFrozen: true, CategoryBeverages: true, CategoryOther: true,
}

// ValidCategory reports whether c is one of the item categories.
func ValidCategory(c string) bool { return categories[c] }

// SelectEntries keeps entries whose date key lies in [start, end]. A nil bound is open.
func SelectEntries(entries []storage.MealEntry, start, end *time.Time) []storage.MealEntry {
	if start == nil && end == nil {
		return entries
	}
	var startKey, endKey string
	if start != nil {
		startKey = weekdate.DateKey(*start)
	}
	if end != nil {
		endKey = weekdate.DateKey(*end)
	}

	out := make([]storage.MealEntry, 0, len(entries))
	for _, e := range entries {
		if startKey != "" && e.DateKey < startKey {
			continue
		}
		if endKey != "" && e.DateKey > endKey {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FlatLine is one aggregated ingredient of the count-annotation strategy.
type FlatLine struct {
	Name  string // capitalized key
	Count int    // number of meal ingredients that produced the key
	// Servings shared by every contributing meal; 0 when they differ.
	Servings int
}

// Text renders the line the way grocery lists show it, e.g. "Egg (x3) (needed 2 times)".
func (l FlatLine) Text() string {
	text := l.Name
	if l.Servings > 1 {
		text += fmt.Sprintf(" (x%d)", l.Servings)
	}
	if l.Count > 1 {
		text += fmt.Sprintf(" (needed %d times)", l.Count)
	}
	return text
}

// FlatLines aggregates the ingredients of the selected entries on their trimmed,
// lower-cased text, sorted by key.
func FlatLines(entries []storage.MealEntry, start, end *time.Time) []FlatLine {
	lines := make(map[string]*FlatLine)
	for _, e := range SelectEntries(entries, start, end) {
		for _, ing := range e.Snapshot.Ingredients {
			key := strings.ToLower(strings.TrimSpace(ing))
			if key == "" {
				continue
			}
			l, ok := lines[key]
			if !ok {
				l = &FlatLine{Name: capitalize(key), Servings: e.Servings}
				lines[key] = l
			} else if l.Servings != e.Servings {
				l.Servings = 0
			}
			l.Count++
		}
	}

	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FlatLine, len(keys))
	for i, k := range keys {
		out[i] = *lines[k]
	}
	return out
}

// FlatList is the count-annotation strategy used for display lists.
//
// Each distinct trimmed, lower-cased ingredient string becomes one line. A line
// met in more than one meal reads "Egg (needed 2 times)"; a meal with several
// servings adds "(x2)", kept on merged lines only while every meal agrees on
// the servings. Lines are sorted by key.
func FlatList(entries []storage.MealEntry, start, end *time.Time) []string {
	if len(SelectEntries(entries, start, end)) == 0 {
		return []string{NoMealsPlaceholder}
	}
	lines := FlatLines(entries, start, end)
	if len(lines) == 0 {
		return []string{NoIngredientsPlaceholder}
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text()
	}
	return out
}

// IsPlaceholder reports whether list carries no real grocery items.
func IsPlaceholder(list []string) bool {
	return len(list) == 1 && (list[0] == NoMealsPlaceholder || list[0] == NoIngredientsPlaceholder)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Ingredient is one structured ingredient fed to StructuredList.
type Ingredient struct {
	Name     string `json:"name"`
	Amount   string `json:"amount,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Category string `json:"category,omitempty"`
}

// StructuredList is the amount-concatenation strategy used for grocery documents.
//
// Ingredients merge on their trimmed, lower-cased name. The first occurrence
// keeps name, unit and category; later amounts are appended as "2 cups + 1 cup"
// when both sides have one. Output follows first occurrence order.
func StructuredList(ingredients []Ingredient) []storage.GroceryItem {
	index := make(map[string]int)
	out := make([]storage.GroceryItem, 0, len(ingredients))
	for _, ing := range ingredients {
		key := strings.ToLower(strings.TrimSpace(ing.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if out[i].Amount != "" && ing.Amount != "" {
				out[i].Amount = out[i].Amount + " + " + ing.Amount
			}
			continue
		}
		category := ing.Category
		if !ValidCategory(category) {
			category = CategoryOther
		}
		index[key] = len(out)
		out = append(out, storage.GroceryItem{
			Name:     strings.TrimSpace(ing.Name),
			Amount:   ing.Amount,
			Unit:     ing.Unit,
			Category: category,
		})
	}
	return out
}

// EntryIngredients projects meal entries into structured ingredients, using the
// snapshot's detailed ingredients when it has them.
func EntryIngredients(entries []storage.MealEntry) []Ingredient {
	var out []Ingredient
	for _, e := range entries {
		if len(e.Snapshot.DetailedIngredients) > 0 {
			for _, d := range e.Snapshot.DetailedIngredients {
				out = append(out, Ingredient{Name: d.Name, Amount: d.Amount, Unit: d.Unit})
			}
			continue
		}
		for _, s := range e.Snapshot.Ingredients {
			out = append(out, Ingredient{Name: s})
		}
	}
	return out
}

// WeekRecipe is a recipe slot of a raw weekly structure.
type WeekRecipe struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
}

// WeeklyStructure maps a day label to meal type to recipe, as sent by calendar clients.
type WeeklyStructure map[string]map[string]*WeekRecipe

// weekMealOrder is the slot order within a day. "Snacks" is what calendar clients send.
var weekMealOrder = []string{"Breakfast", "Lunch", "Dinner", "Snacks", "Snack"}

// StructuredFromWeek runs StructuredList over a raw weekly structure. Days are
// visited in key order, slots in weekMealOrder.
func StructuredFromWeek(week WeeklyStructure) []storage.GroceryItem {
	days := make([]string, 0, len(week))
	for d := range week {
		days = append(days, d)
	}
	sort.Strings(days)

	var all []Ingredient
	for _, d := range days {
		meals := week[d]
		for _, mt := range weekMealOrder {
			if r := meals[mt]; r != nil {
				all = append(all, r.Ingredients...)
			}
		}
	}
	return StructuredList(all)
}
