package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
)

type usersStorage struct {
	mu    sync.RWMutex
	users map[string]storage.User
}

func newUsersStorage() *usersStorage {
	return &usersStorage{users: make(map[string]storage.User)}
}

func cloneUser(u storage.User) storage.User {
	u.Preferences.DietaryRestrictions = cloneStrings(u.Preferences.DietaryRestrictions)
	u.Preferences.Allergies = cloneStrings(u.Preferences.Allergies)
	u.Preferences.CuisinePreferences = cloneStrings(u.Preferences.CuisinePreferences)
	return u
}

// takenLocked проверяет уникальность email и username без учёта регистра
func (s *usersStorage) takenLocked(u *storage.User) bool {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) || strings.EqualFold(other.Username, u.Username) {
			return true
		}
	}
	return false
}

func (s *usersStorage) Create(ctx context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, exists := s.users[user.ID]; exists || s.takenLocked(user) {
		return storage.ErrDuplicateKey
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (s *usersStorage) Get(ctx context.Context, id string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *usersStorage) GetByEmail(ctx context.Context, email string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (s *usersStorage) Update(ctx context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if s.takenLocked(user) {
		return storage.ErrDuplicateKey
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (s *usersStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}
