package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
)

// exportsStorage - метаданные выгрузок списка покупок; сами файлы лежат в blob
type exportsStorage struct {
	mu      sync.RWMutex
	exports map[string]storage.GroceryExport
}

func newExportsStorage() *exportsStorage {
	return &exportsStorage{exports: make(map[string]storage.GroceryExport)}
}

func (s *exportsStorage) Create(ctx context.Context, export *storage.GroceryExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if export.ID == "" {
		export.ID = uuid.NewString()
	}
	if _, exists := s.exports[export.ID]; exists {
		return storage.ErrDuplicateKey
	}
	export.CreatedAt = time.Now().UTC()
	s.exports[export.ID] = *export
	return nil
}

func (s *exportsStorage) Get(ctx context.Context, userID, id string) (storage.GroceryExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exports[id]
	if !ok || e.UserID != userID {
		return storage.GroceryExport{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *exportsStorage) List(ctx context.Context, userID string, limit, offset int) ([]storage.GroceryExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []storage.GroceryExport
	for _, e := range s.exports {
		if e.UserID == userID {
			filtered = append(filtered, e)
		}
	}

	// Сортируем по created_at DESC
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return page(filtered, limit, offset), nil
}

func (s *exportsStorage) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.exports[id]
	if !ok || e.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.exports, id)
	return nil
}
