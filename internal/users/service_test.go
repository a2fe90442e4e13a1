package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/logging"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/storage/memory"
	"github.com/fdg312/meal-planner/internal/userctx"
)

type recordingCleaner struct {
	deleted []string
	err     error
}

func (c *recordingCleaner) DeleteAllForUser(ctx context.Context, userID string) error {
	if c.err != nil {
		return c.err
	}
	c.deleted = append(c.deleted, userID)
	return nil
}

func seedUser(t *testing.T, store storage.UsersStorage, email, username, password string) storage.User {
	t.Helper()
	hash, err := HashPassword(password, 4)
	if err != nil {
		t.Fatal(err)
	}
	u := storage.User{Email: email, Username: username, PasswordHash: hash, Profile: storage.UserProfile{FirstName: "Ann"}}
	if err := store.Create(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestUpdateMergesProfile(t *testing.T) {
	store := memory.New().GetUsersStorage()
	svc := NewService(store, 4, logging.Discard())
	u := seedUser(t, store, "ann@example.com", "ann", "secret1")

	last := "Lee"
	servings := 4
	diet := []string{"vegetarian"}
	got, err := svc.Update(context.Background(), u.ID, UpdateRequest{
		Profile:     &ProfilePatch{LastName: &last},
		Preferences: &PreferencesPatch{DefaultServings: &servings, DietaryRestrictions: &diet},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Profile.FirstName != "Ann" || got.Profile.LastName != "Lee" {
		t.Errorf("expected merged profile, got %+v", got.Profile)
	}
	if got.Preferences.DefaultServings != 4 || len(got.Preferences.DietaryRestrictions) != 1 {
		t.Errorf("unexpected preferences %+v", got.Preferences)
	}

	bad := 50
	if _, err := svc.Update(context.Background(), u.ID, UpdateRequest{Preferences: &PreferencesPatch{DefaultServings: &bad}}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateUsernameTaken(t *testing.T) {
	store := memory.New().GetUsersStorage()
	svc := NewService(store, 4, logging.Discard())
	seedUser(t, store, "ann@example.com", "ann", "secret1")
	bob := seedUser(t, store, "bob@example.com", "bob", "secret1")

	name := "ann"
	_, err := svc.Update(context.Background(), bob.ID, UpdateRequest{Username: &name})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := memory.New().GetUsersStorage()
	svc := NewService(store, 4, logging.Discard())
	u := seedUser(t, store, "ann@example.com", "ann", "secret1")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "wrong!", NewPassword: "secret2"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "123"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for short password, got %v", err)
	}

	if err := svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := store.Get(ctx, u.ID)
	if !CheckPassword(stored.PasswordHash, "secret2") || CheckPassword(stored.PasswordHash, "secret1") {
		t.Error("expected the new password to replace the old one")
	}
}

func TestDeleteCascades(t *testing.T) {
	store := memory.New().GetUsersStorage()
	plans, lists := &recordingCleaner{}, &recordingCleaner{}
	svc := NewService(store, 4, logging.Discard(), plans, lists)
	u := seedUser(t, store, "ann@example.com", "ann", "secret1")
	ctx := context.Background()

	if err := svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans.deleted) != 1 || len(lists.deleted) != 1 {
		t.Errorf("expected every cleaner to run once, got %v %v", plans.deleted, lists.deleted)
	}
	if _, err := svc.Get(ctx, u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected deleted user to be gone, got %v", err)
	}
}

func TestDeleteKeepsUserWhenCleanupFails(t *testing.T) {
	store := memory.New().GetUsersStorage()
	svc := NewService(store, 4, logging.Discard(), &recordingCleaner{err: errors.New("db down")})
	u := seedUser(t, store, "ann@example.com", "ann", "secret1")

	if err := svc.Delete(context.Background(), u.ID); err == nil {
		t.Fatal("expected error")
	}
	if _, err := store.Get(context.Background(), u.ID); err != nil {
		t.Errorf("expected user to survive a failed cascade, got %v", err)
	}
}

func TestHandlers(t *testing.T) {
	store := memory.New().GetUsersStorage()
	h := NewHandler(NewService(store, 4, logging.Discard()), logging.Discard())
	u := seedUser(t, store, "ann@example.com", "ann", "secret1")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/me", h.HandleGetMe)
	mux.HandleFunc("PUT /v1/users/me", h.HandleUpdateMe)
	mux.HandleFunc("DELETE /v1/users/me", h.HandleDeleteMe)
	mux.HandleFunc("GET /v1/users/{id}", h.HandleGetPublic)

	as := func(method, path, body, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if userID != "" {
			req = req.WithContext(userctx.WithUserID(req.Context(), userID))
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		return w
	}

	w := as("GET", "/v1/users/me", "", u.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var me UserDTO
	json.NewDecoder(w.Body).Decode(&me)
	if me.Email != "ann@example.com" {
		t.Errorf("unexpected profile %+v", me)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("password hash must not be exposed")
	}

	if w := as("GET", "/v1/users/me", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for anonymous caller, got %d", w.Code)
	}

	w = as("GET", "/v1/users/"+u.ID, "", "")
	var pub map[string]any
	json.NewDecoder(w.Body).Decode(&pub)
	if pub["username"] != "ann" || pub["first_name"] != "Ann" || pub["email"] != nil {
		t.Errorf("unexpected public view %v", pub)
	}

	if w := as("PUT", "/v1/users/me", `{"profile":`, u.ID); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if w := as("DELETE", "/v1/users/me", "", u.ID); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if w := as("GET", "/v1/users/"+u.ID, "", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
