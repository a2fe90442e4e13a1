package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/google/uuid"
)

type mealPlansStorage struct {
	mu    sync.RWMutex
	plans map[string]storage.MealPlan // key: plan_id
	// индекс (user, week) -> plan_id, аналог unique(user_id, week_id)
	byUserWeek map[string]string
}

func newMealPlansStorage() *mealPlansStorage {
	return &mealPlansStorage{
		plans:      make(map[string]storage.MealPlan),
		byUserWeek: make(map[string]string),
	}
}

func userWeekKey(userID, weekID string) string {
	return userID + "|" + weekID
}

func clonePlan(p storage.MealPlan) storage.MealPlan {
	if p.Entries != nil {
		entries := make([]storage.MealEntry, len(p.Entries))
		for i, e := range p.Entries {
			e.Snapshot.Ingredients = cloneStrings(e.Snapshot.Ingredients)
			if e.Snapshot.DetailedIngredients != nil {
				e.Snapshot.DetailedIngredients = append([]storage.DetailedIngredient(nil), e.Snapshot.DetailedIngredients...)
			}
			entries[i] = e
		}
		p.Entries = entries
	}
	if p.LastShoppingListAt != nil {
		t := *p.LastShoppingListAt
		p.LastShoppingListAt = &t
	}
	return p
}

func (s *mealPlansStorage) Load(ctx context.Context, userID, weekID string) (storage.MealPlan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUserWeek[userWeekKey(userID, weekID)]
	if !ok {
		return storage.MealPlan{}, false, nil
	}
	return clonePlan(s.plans[id]), true, nil
}

func (s *mealPlansStorage) Get(ctx context.Context, userID, id string) (storage.MealPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok || p.UserID != userID {
		return storage.MealPlan{}, storage.ErrNotFound
	}
	return clonePlan(p), nil
}

func (s *mealPlansStorage) Create(ctx context.Context, plan *storage.MealPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userWeekKey(plan.UserID, plan.WeekID)
	if _, exists := s.byUserWeek[key]; exists {
		return storage.ErrDuplicateKey
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.Version = 1
	for i := range plan.Entries {
		if plan.Entries[i].ID == "" {
			plan.Entries[i].ID = uuid.NewString()
		}
	}

	s.plans[plan.ID] = clonePlan(*plan)
	s.byUserWeek[key] = plan.ID
	return nil
}

func (s *mealPlansStorage) Save(ctx context.Context, plan *storage.MealPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.plans[plan.ID]
	if !ok || existing.UserID != plan.UserID {
		return storage.ErrNotFound
	}
	if existing.Version != plan.Version {
		return storage.ErrConflict
	}

	now := time.Now().UTC()
	for i := range plan.Entries {
		if plan.Entries[i].ID == "" {
			plan.Entries[i].ID = uuid.NewString()
		}
		if plan.Entries[i].CreatedAt.IsZero() {
			plan.Entries[i].CreatedAt = now
		}
	}
	plan.Version++
	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = now

	s.plans[plan.ID] = clonePlan(*plan)
	return nil
}

func (s *mealPlansStorage) List(ctx context.Context, userID string, filter storage.MealPlanFilter) ([]storage.MealPlan, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storage.MealPlan
	for _, p := range s.plans {
		if p.UserID != userID {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].WeekStart.After(matched[j].WeekStart)
	})

	total := len(matched)
	out := page(matched, filter.Limit, filter.Offset)
	for i := range out {
		out[i] = clonePlan(out[i])
	}
	return out, total, nil
}

func (s *mealPlansStorage) ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]storage.MealPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromKey, toKey := weekdate.DateKey(from), weekdate.DateKey(to)
	var out []storage.MealPlan
	for _, p := range s.plans {
		if p.UserID != userID {
			continue
		}
		if weekdate.DateKey(p.WeekEnd) < fromKey || weekdate.DateKey(p.WeekStart) > toKey {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WeekStart.Before(out[j].WeekStart)
	})
	return out, nil
}

func (s *mealPlansStorage) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok || p.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.byUserWeek, userWeekKey(p.UserID, p.WeekID))
	delete(s.plans, id)
	return nil
}

func (s *mealPlansStorage) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.plans {
		if p.UserID == userID {
			delete(s.byUserWeek, userWeekKey(p.UserID, p.WeekID))
			delete(s.plans, id)
		}
	}
	return nil
}
