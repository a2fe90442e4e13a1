package auth

import (
	"strings"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/users"
)

// RegisterRequest - запрос на регистрацию
type RegisterRequest struct {
	Email       string                  `json:"email"`
	Username    string                  `json:"username"`
	Password    string                  `json:"password"`
	Profile     storage.UserProfile     `json:"profile"`
	Preferences storage.UserPreferences `json:"preferences"`
}

func (r *RegisterRequest) Validate() error {
	var v apperr.Validator
	v.Check(users.ValidEmail(strings.TrimSpace(r.Email)), "email must be a valid email address")
	v.Check(users.ValidUsername(r.Username), "username must be 3-30 letters, digits, dots, dashes or underscores")
	v.Check(len(r.Password) >= users.MinPasswordLength, "password must be at least %d characters", users.MinPasswordLength)
	return v.Err()
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	var v apperr.Validator
	v.Check(strings.TrimSpace(r.Email) != "", "email is required")
	v.Check(r.Password != "", "password is required")
	return v.Err()
}

// AuthResponse - ответ на успешный вход
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	User        users.UserDTO `json:"user"`
}
