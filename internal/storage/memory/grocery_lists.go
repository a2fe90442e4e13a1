package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
)

type groceryListsStorage struct {
	mu    sync.RWMutex
	lists map[string]storage.GroceryList
}

func newGroceryListsStorage() *groceryListsStorage {
	return &groceryListsStorage{lists: make(map[string]storage.GroceryList)}
}

func cloneGroceryList(l storage.GroceryList) storage.GroceryList {
	if l.Items != nil {
		l.Items = append([]storage.GroceryItem(nil), l.Items...)
	}
	if l.MealPlanID != nil {
		id := *l.MealPlanID
		l.MealPlanID = &id
	}
	if l.ShoppingDate != nil {
		d := *l.ShoppingDate
		l.ShoppingDate = &d
	}
	return l
}

func assignItemIDs(items []storage.GroceryItem) {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
}

func (s *groceryListsStorage) Create(ctx context.Context, list *storage.GroceryList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	if _, exists := s.lists[list.ID]; exists {
		return storage.ErrDuplicateKey
	}
	assignItemIDs(list.Items)

	now := time.Now().UTC()
	list.CreatedAt = now
	list.UpdatedAt = now
	s.lists[list.ID] = cloneGroceryList(*list)
	return nil
}

func (s *groceryListsStorage) Get(ctx context.Context, userID, id string) (storage.GroceryList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return storage.GroceryList{}, storage.ErrNotFound
	}
	return cloneGroceryList(l), nil
}

func (s *groceryListsStorage) Update(ctx context.Context, list *storage.GroceryList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lists[list.ID]
	if !ok || existing.UserID != list.UserID {
		return storage.ErrNotFound
	}
	assignItemIDs(list.Items)

	list.CreatedAt = existing.CreatedAt
	list.UpdatedAt = time.Now().UTC()
	s.lists[list.ID] = cloneGroceryList(*list)
	return nil
}

func (s *groceryListsStorage) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.lists, id)
	return nil
}

func (s *groceryListsStorage) List(ctx context.Context, userID string, filter storage.GroceryListFilter) ([]storage.GroceryList, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storage.GroceryList
	for _, l := range s.lists {
		if l.UserID != userID {
			continue
		}
		if filter.IsActive != nil && l.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	out := page(matched, filter.Limit, filter.Offset)
	for i := range out {
		out[i] = cloneGroceryList(out[i])
	}
	return out, total, nil
}

func (s *groceryListsStorage) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.lists {
		if l.UserID == userID {
			delete(s.lists, id)
		}
	}
	return nil
}
