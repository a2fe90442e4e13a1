package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
)

type recipesStorage struct {
	mu       sync.RWMutex
	recipes  map[string]storage.Recipe
	byMealDB map[string]string // mealdb_id -> id
}

func newRecipesStorage() *recipesStorage {
	return &recipesStorage{
		recipes:  make(map[string]storage.Recipe),
		byMealDB: make(map[string]string),
	}
}

func cloneRecipe(r storage.Recipe) storage.Recipe {
	r.Ingredients = cloneStrings(r.Ingredients)
	r.Tags = cloneStrings(r.Tags)
	r.Diet = cloneStrings(r.Diet)
	if r.DetailedIngredients != nil {
		r.DetailedIngredients = append([]storage.DetailedIngredient(nil), r.DetailedIngredients...)
	}
	return r
}

func (s *recipesStorage) Get(ctx context.Context, id string) (storage.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		return storage.Recipe{}, storage.ErrNotFound
	}
	return cloneRecipe(r), nil
}

func (s *recipesStorage) GetByMealDBID(ctx context.Context, mealDBID string) (storage.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMealDB[mealDBID]
	if !ok {
		return storage.Recipe{}, storage.ErrNotFound
	}
	return cloneRecipe(s.recipes[id]), nil
}

func (s *recipesStorage) Create(ctx context.Context, recipe *storage.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	if _, exists := s.recipes[recipe.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if recipe.MealDBID != "" {
		if _, exists := s.byMealDB[recipe.MealDBID]; exists {
			return storage.ErrDuplicateKey
		}
		s.byMealDB[recipe.MealDBID] = recipe.ID
	}

	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now
	s.recipes[recipe.ID] = cloneRecipe(*recipe)
	return nil
}

func (s *recipesStorage) Update(ctx context.Context, recipe *storage.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.recipes[recipe.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if recipe.MealDBID != existing.MealDBID {
		if other, taken := s.byMealDB[recipe.MealDBID]; taken && other != recipe.ID {
			return storage.ErrDuplicateKey
		}
		delete(s.byMealDB, existing.MealDBID)
		if recipe.MealDBID != "" {
			s.byMealDB[recipe.MealDBID] = recipe.ID
		}
	}

	recipe.CreatedAt = existing.CreatedAt
	recipe.UpdatedAt = time.Now().UTC()
	s.recipes[recipe.ID] = cloneRecipe(*recipe)
	return nil
}

func (s *recipesStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.MealDBID != "" {
		delete(s.byMealDB, r.MealDBID)
	}
	delete(s.recipes, id)
	return nil
}

func (s *recipesStorage) List(ctx context.Context, filter storage.RecipeFilter) ([]storage.Recipe, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []storage.Recipe
	for _, r := range s.recipes {
		if !r.IsPublic && r.CreatedBy != filter.Visible {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Title), search) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(r.Category, filter.Category) {
			continue
		}
		if filter.Area != "" && !strings.EqualFold(r.Area, filter.Area) {
			continue
		}
		if filter.Diet != "" && !contains(r.Diet, filter.Diet) {
			continue
		}
		matched = append(matched, r)
	}

	// новые сверху, как в postgres
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	out := page(matched, filter.Limit, filter.Offset)
	for i := range out {
		out[i] = cloneRecipe(out[i])
	}
	return out, total, nil
}

func (s *recipesStorage) Tags(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, r := range s.recipes {
		for _, t := range r.Tags {
			set[t] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
