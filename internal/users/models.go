package users

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

// UserDTO - полное представление пользователя для владельца аккаунта
type UserDTO struct {
	ID          string                  `json:"id"`
	Email       string                  `json:"email"`
	Username    string                  `json:"username"`
	Profile     storage.UserProfile     `json:"profile"`
	Preferences storage.UserPreferences `json:"preferences"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func ToDTO(u storage.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Profile:     u.Profile,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// PublicDTO is what other users may see.
type PublicDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

func ToPublicDTO(u storage.User) PublicDTO {
	return PublicDTO{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
		Avatar:    u.Profile.Avatar,
	}
}

// ProfilePatch carries optional profile fields; nil fields are kept.
type ProfilePatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Avatar    *string `json:"avatar"`
	Bio       *string `json:"bio"`
}

type PreferencesPatch struct {
	DietaryRestrictions *[]string `json:"dietary_restrictions"`
	Allergies           *[]string `json:"allergies"`
	CuisinePreferences  *[]string `json:"cuisine_preferences"`
	DefaultServings     *int      `json:"default_servings"`
}

type UpdateRequest struct {
	Username    *string           `json:"username"`
	Profile     *ProfilePatch     `json:"profile"`
	Preferences *PreferencesPatch `json:"preferences"`
}

func (r *UpdateRequest) Validate() error {
	var v apperr.Validator
	if r.Username != nil {
		v.Check(ValidUsername(*r.Username), "username must be 3-30 letters, digits, dots, dashes or underscores")
	}
	if r.Profile != nil && r.Profile.Bio != nil {
		v.Check(len(*r.Profile.Bio) <= 500, "bio must be at most 500 characters")
	}
	if r.Preferences != nil && r.Preferences.DefaultServings != nil {
		n := *r.Preferences.DefaultServings
		v.Check(n >= 1 && n <= 20, "default_servings must be between 1 and 20")
	}
	return v.Err()
}

// apply merges the patch into u.
func (r *UpdateRequest) apply(u *storage.User) {
	if r.Username != nil {
		u.Username = strings.TrimSpace(*r.Username)
	}
	if p := r.Profile; p != nil {
		setString(&u.Profile.FirstName, p.FirstName)
		setString(&u.Profile.LastName, p.LastName)
		setString(&u.Profile.Avatar, p.Avatar)
		setString(&u.Profile.Bio, p.Bio)
	}
	if p := r.Preferences; p != nil {
		if p.DietaryRestrictions != nil {
			u.Preferences.DietaryRestrictions = *p.DietaryRestrictions
		}
		if p.Allergies != nil {
			u.Preferences.Allergies = *p.Allergies
		}
		if p.CuisinePreferences != nil {
			u.Preferences.CuisinePreferences = *p.CuisinePreferences
		}
		if p.DefaultServings != nil {
			u.Preferences.DefaultServings = *p.DefaultServings
		}
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	var v apperr.Validator
	v.Check(r.CurrentPassword != "", "current_password is required")
	v.Check(len(r.NewPassword) >= MinPasswordLength, "new_password must be at least %d characters", MinPasswordLength)
	return v.Err()
}

func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

func ValidUsername(username string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(username))
}
