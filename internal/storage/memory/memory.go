package memory

import (
	"context"
	"sort"

	"github.com/fdg312/meal-planner/internal/storage"
)

// MemoryStorage - in-memory реализация Storage, для локальной разработки и тестов
type MemoryStorage struct {
	users     *usersStorage
	recipes   *recipesStorage
	mealPlans *mealPlansStorage
	grocery   *groceryListsStorage
	exports   *exportsStorage
}

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		users:     newUsersStorage(),
		recipes:   newRecipesStorage(),
		mealPlans: newMealPlansStorage(),
		grocery:   newGroceryListsStorage(),
		exports:   newExportsStorage(),
	}
}

func (m *MemoryStorage) GetUsersStorage() storage.UsersStorage               { return m.users }
func (m *MemoryStorage) GetRecipesStorage() storage.RecipesStorage           { return m.recipes }
func (m *MemoryStorage) GetMealPlansStorage() storage.MealPlansStorage       { return m.mealPlans }
func (m *MemoryStorage) GetGroceryListsStorage() storage.GroceryListsStorage { return m.grocery }
func (m *MemoryStorage) GetExportsStorage() storage.ExportsStorage           { return m.exports }

func (m *MemoryStorage) Mode() string                   { return "memory" }
func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }
func (m *MemoryStorage) Close() error                   { return nil }

// page применяет limit/offset; limit <= 0 означает «без ограничения»
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
