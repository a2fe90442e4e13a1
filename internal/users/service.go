package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/sirupsen/logrus"
)

// Cleaner removes everything a user owns in one area. The meal plan, grocery
// list and export services satisfy it.
type Cleaner interface {
	DeleteAllForUser(ctx context.Context, userID string) error
}

type Service struct {
	store      storage.UsersStorage
	cleaners   []Cleaner
	bcryptCost int
	log        logrus.FieldLogger
}

func NewService(store storage.UsersStorage, bcryptCost int, log logrus.FieldLogger, cleaners ...Cleaner) *Service {
	return &Service{store: store, cleaners: cleaners, bcryptCost: bcryptCost, log: log}
}

func (s *Service) Get(ctx context.Context, id string) (storage.User, error) {
	if id == "" {
		return storage.User{}, apperr.Unauthorized("unauthorized", "sign in to view your profile")
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, apperr.NotFound("user %s not found", id)
		}
		return storage.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (storage.User, error) {
	if err := req.Validate(); err != nil {
		return storage.User{}, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return storage.User{}, err
	}
	req.apply(&u)

	if err := s.store.Update(ctx, &u); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return storage.User{}, apperr.WithCode(apperr.Conflict("username %s is already taken", u.Username), "username_taken")
		}
		return storage.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the hash after verifying the current password.
func (s *Service) ChangePassword(ctx context.Context, id string, req ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, req.CurrentPassword) {
		return apperr.Unauthorized("invalid_credentials", "Current password is incorrect")
	}

	hash, err := HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.store.Update(ctx, &u); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.log.WithField("user_id", id).Info("password changed")
	return nil
}

// Delete removes the account after everything it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	for _, c := range s.cleaners {
		if err := c.DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("user %s not found", id)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.log.WithField("user_id", id).Info("account deleted")
	return nil
}
