package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type usersStorage struct {
	pool *pgxpool.Pool
}

const userColumns = `id::text, email, username, password_hash, first_name, last_name, avatar, bio, preferences, created_at, updated_at`

func scanUser(row pgx.Row) (storage.User, error) {
	var u storage.User
	var prefs []byte
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Profile.FirstName,
		&u.Profile.LastName,
		&u.Profile.Avatar,
		&u.Profile.Bio,
		&prefs,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return storage.User{}, mapError(err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return storage.User{}, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return u, nil
}

func (s *usersStorage) Create(ctx context.Context, user *storage.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, avatar, bio, preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Profile.FirstName,
		user.Profile.LastName,
		user.Profile.Avatar,
		user.Profile.Bio,
		prefs,
		now,
	)
	if err != nil {
		return mapError(err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *usersStorage) Get(ctx context.Context, id string) (storage.User, error) {
	if !validID(id) {
		return storage.User{}, storage.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *usersStorage) GetByEmail(ctx context.Context, email string) (storage.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *usersStorage) Update(ctx context.Context, user *storage.User) error {
	if !validID(user.ID) {
		return storage.ErrNotFound
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `
		UPDATE users
		SET email = $2, username = $3, password_hash = $4, first_name = $5, last_name = $6,
		    avatar = $7, bio = $8, preferences = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.Profile.FirstName,
		user.Profile.LastName,
		user.Profile.Avatar,
		user.Profile.Bio,
		prefs,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return mapError(err)
}

func (s *usersStorage) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
