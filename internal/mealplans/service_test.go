package mealplans

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/logging"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/storage/memory"
	"github.com/fdg312/meal-planner/internal/userctx"
)

type fakeLookup struct {
	recipes map[string]storage.Recipe
	err     error
}

func (f *fakeLookup) GetRecipeByID(ctx context.Context, id string) (storage.Recipe, error) {
	if f.err != nil {
		return storage.Recipe{}, f.err
	}
	r, ok := f.recipes[id]
	if !ok {
		return storage.Recipe{}, apperr.NotFound("recipe %s not found", id)
	}
	return r, nil
}

// conflictingStore fails the first n saves with ErrConflict.
type conflictingStore struct {
	storage.MealPlansStorage
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (s *conflictingStore) Save(ctx context.Context, plan *storage.MealPlan) error {
	s.mu.Lock()
	s.saves++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()
	if fail {
		return storage.ErrConflict
	}
	return s.MealPlansStorage.Save(ctx, plan)
}

// racingStore reports the week as absent once, as a losing concurrent creator would see it.
type racingStore struct {
	storage.MealPlansStorage
	hidden bool
}

func (s *racingStore) Load(ctx context.Context, userID, weekID string) (storage.MealPlan, bool, error) {
	if !s.hidden {
		s.hidden = true
		return storage.MealPlan{}, false, nil
	}
	return s.MealPlansStorage.Load(ctx, userID, weekID)
}

type countingRecorder struct {
	mutations []string
	conflicts int
}

func (c *countingRecorder) MealMutation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.mutations = append(c.mutations, op+":"+outcome)
}

func (c *countingRecorder) SaveConflict() { c.conflicts++ }

func newLookup() *fakeLookup {
	return &fakeLookup{recipes: map[string]storage.Recipe{"r-tacos": tacos()}}
}

func newTestService(store storage.MealPlansStorage, lookup RecipeLookup, opts ...Option) *Service {
	return NewService(store, lookup, logging.Discard(), opts...)
}

func TestServiceAddMealScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.New().GetMealPlansStorage()
	rec := &countingRecorder{}
	svc := newTestService(store, newLookup(), WithRecorder(rec))

	_, _, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos", Servings: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, plan, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-02", MealType: "Dinner", RecipeID: "r-tacos", Servings: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.TotalCalories != 1200 {
		t.Errorf("expected totalCalories 1200, got %v", plan.TotalCalories)
	}
	if entry.ID == "" {
		t.Error("expected the stored entry id to be returned")
	}

	stored, found, _ := store.Load(ctx, "u1", "2023-53")
	if !found || len(stored.Entries) != 2 || stored.TotalCalories != 1200 {
		t.Errorf("expected persisted plan with 2 entries and 1200 kcal, got %+v", stored)
	}
	if len(rec.mutations) != 2 || rec.mutations[1] != "add:ok" {
		t.Errorf("unexpected recorded mutations %v", rec.mutations)
	}
}

func TestServiceAddMealValidatesBeforeLookup(t *testing.T) {
	lookup := newLookup()
	lookup.err = errors.New("lookup must not be called")
	svc := newTestService(memory.New().GetMealPlansStorage(), lookup)

	tests := []AddMealRequest{
		{MealType: "Dinner", RecipeID: "r-tacos"},
		{Date: "01/02/2024", MealType: "Dinner", RecipeID: "r-tacos"},
		{Date: "2024-01-01", MealType: "Brunch", RecipeID: "r-tacos"},
		{Date: "2024-01-01", MealType: "Dinner"},
		{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos", Servings: -2},
	}
	for _, req := range tests {
		_, _, err := svc.AddMeal(context.Background(), "u1", req)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("request %+v: expected validation error, got %v", req, err)
		}
	}
}

func TestServiceAddMealFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := memory.New().GetMealPlansStorage()

	lookup := newLookup()
	svc := newTestService(store, lookup)
	_, _, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Lunch", RecipeID: "missing"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	lookup.err = apperr.Upstream(errors.New("timeout"), "recipe source unavailable")
	_, _, err = svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Lunch", RecipeID: "r-tacos"})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}

	if _, found, _ := store.Load(ctx, "u1", "2023-53"); found {
		t.Error("expected no plan to be created when the lookup fails")
	}
}

func TestServiceAddMealRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MealPlansStorage: memory.New().GetMealPlansStorage(), conflicts: 2}
	rec := &countingRecorder{}
	svc := newTestService(store, newLookup(), WithRecorder(rec))

	_, plan, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(plan.Entries) != 1 || store.saves != 3 || rec.conflicts != 2 {
		t.Errorf("expected 3 saves and 2 conflicts, got %d saves, %d conflicts", store.saves, rec.conflicts)
	}
}

func TestServiceAddMealSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MealPlansStorage: memory.New().GetMealPlansStorage(), conflicts: 10}
	svc := newTestService(store, newLookup(), WithSaveRetries(2))

	_, _, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if store.saves != 2 {
		t.Errorf("expected 2 save attempts, got %d", store.saves)
	}
}

func TestServiceFindOrCreateRace(t *testing.T) {
	ctx := context.Background()
	mem := memory.New().GetMealPlansStorage()
	winner := NewPlan("u1", date(2024, 1, 10))
	if err := mem.Create(ctx, &winner.MealPlan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc := newTestService(&racingStore{MealPlansStorage: mem}, newLookup())
	plan, err := svc.FindOrCreate(ctx, "u1", date(2024, 1, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ID != winner.ID {
		t.Errorf("expected the existing plan %s, got %s", winner.ID, plan.ID)
	}
}

func TestServiceFindOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.New().GetMealPlansStorage()
	svc := newTestService(store, newLookup())

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.FindOrCreate(ctx, "u1", date(2024, 1, 10))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single plan, got %v", ids)
		}
	}
}

func TestServiceRemoveMeal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())

	_, err := svc.RemoveMeal(ctx, "u1", MealSlotRequest{Date: "2024-01-01", MealType: "Dinner"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for a week without a plan, got %v", err)
	}

	svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos", Servings: 2})
	plan, err := svc.RemoveMeal(ctx, "u1", MealSlotRequest{Date: "2024-01-01", MealType: "Lunch"})
	if err != nil {
		t.Fatalf("expected removing an empty slot to succeed, got %v", err)
	}
	if len(plan.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(plan.Entries))
	}

	plan, err = svc.RemoveMeal(ctx, "u1", MealSlotRequest{Date: "2024-01-01", MealType: "Dinner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Entries) != 0 || plan.TotalCalories != 0 {
		t.Errorf("expected empty plan, got %+v", plan.MealPlan)
	}
}

func TestServiceGroceryListForRange(t *testing.T) {
	ctx := context.Background()
	store := memory.New().GetMealPlansStorage()
	lookup := &fakeLookup{recipes: map[string]storage.Recipe{
		"omelette": {ID: "omelette", Title: "Omelette", Ingredients: []string{"Egg"}},
		"cake":     {ID: "cake", Title: "Cake", Ingredients: []string{"Egg", "Flour"}},
	}}
	svc := newTestService(store, lookup)

	// Two different weeks.
	svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-05", MealType: "Breakfast", RecipeID: "omelette"})
	svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-08", MealType: "Dinner", RecipeID: "cake", Servings: 2})
	svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-12", MealType: "Dinner", RecipeID: "cake"})

	end := date(2024, 1, 8)
	resp, err := svc.GroceryListForRange(ctx, "u1", date(2024, 1, 5), &end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Egg (needed 2 times)", "Flour (x2)"}
	if strings.Join(resp.Items, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, resp.Items)
	}
	if len(resp.MealPlanIDs) != 2 || resp.MealsCounted != 2 || resp.IsEmpty {
		t.Errorf("unexpected response %+v", resp)
	}

	for _, weekID := range []string{"2023-53", "2024-02"} {
		p, _, _ := store.Load(ctx, "u1", weekID)
		if !p.ShoppingListGenerated || p.LastShoppingListAt == nil {
			t.Errorf("expected week %s to be flagged", weekID)
		}
	}

	empty, err := svc.GroceryListForRange(ctx, "u1", date(2024, 3, 1), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !empty.IsEmpty || empty.EndDate != "2024-03-07" {
		t.Errorf("expected empty placeholder list over a default 7 day range, got %+v", empty)
	}

	bad := date(2024, 1, 1)
	if _, err := svc.GroceryListForRange(ctx, "u1", date(2024, 1, 5), &bad); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for an inverted range, got %v", err)
	}
}

func TestServiceOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())

	_, plan, err := svc.AddMeal(ctx, "u1", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Get(ctx, "u2", plan.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
	if err := svc.Delete(ctx, "u2", plan.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for another user's delete, got %v", err)
	}
	if _, _, err := svc.AddMeal(ctx, "", AddMealRequest{Date: "2024-01-01", MealType: "Dinner", RecipeID: "r-tacos"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized without a user, got %v", err)
	}
}

func TestServiceUpdateAndList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())

	p, _ := svc.FindOrCreate(ctx, "u1", date(2024, 1, 1))
	svc.FindOrCreate(ctx, "u1", date(2024, 1, 8))

	notes := "  prep on Sunday "
	inactive := false
	updated, err := svc.Update(ctx, "u1", p.ID, UpdatePlanRequest{Notes: &notes, IsActive: &inactive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Notes != "prep on Sunday" || updated.IsActive {
		t.Errorf("unexpected update result %+v", updated.MealPlan)
	}

	active := true
	list, err := svc.List(ctx, "u1", &active, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Total != 1 || list.MealPlans[0].WeekID != "2024-02" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestHandleAddMeal(t *testing.T) {
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())
	h := NewHandler(svc, logging.Discard())

	body := `{"date":"2024-01-01","meal_type":"Dinner","recipe_id":"r-tacos","servings":2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/meal-plans/meals", strings.NewReader(body))
	req = req.WithContext(userctx.WithUserID(req.Context(), "u1"))
	w := httptest.NewRecorder()
	h.HandleAddMeal(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp AddMealResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Tacos added to Dinner on 2024-01-01" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.MealPlan.TotalCalories != 800 || resp.Meal.Servings != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandleAddMealErrors(t *testing.T) {
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())
	h := NewHandler(svc, logging.Discard())

	tests := []struct {
		body   string
		status int
		code   string
	}{
		{`{`, http.StatusBadRequest, "invalid_request"},
		{`{"date":"2024-01-01","meal_type":"Brunch","recipe_id":"r-tacos"}`, http.StatusBadRequest, "validation_error"},
		{`{"date":"2024-01-01","meal_type":"Lunch","recipe_id":"nope"}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/meal-plans/meals", strings.NewReader(tt.body))
		req = req.WithContext(userctx.WithUserID(req.Context(), "u1"))
		w := httptest.NewRecorder()
		h.HandleAddMeal(w, req)

		if w.Code != tt.status {
			t.Errorf("body %s: expected status %d, got %d", tt.body, tt.status, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"code":"`+tt.code+`"`) {
			t.Errorf("body %s: expected code %s, got %s", tt.body, tt.code, w.Body.String())
		}
	}
}

func TestHandleGetWeek(t *testing.T) {
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup())
	h := NewHandler(svc, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/meal-plans/week?date=2024-01-10", nil)
	req = req.WithContext(userctx.WithUserID(req.Context(), "u1"))
	w := httptest.NewRecorder()
	h.HandleGetWeek(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp WeekResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.MealPlan.WeekID != "2024-02" || resp.Week.Range != "Jan 7 - Jan 13, 2024" {
		t.Errorf("unexpected week %+v", resp.Week)
	}
	if resp.PreviousWeekDate != "2023-12-31" || resp.NextWeekDate != "2024-01-14" {
		t.Errorf("unexpected navigation %s / %s", resp.PreviousWeekDate, resp.NextWeekDate)
	}

	bad := httptest.NewRequest(http.MethodGet, "/v1/meal-plans/week?date=tomorrow", nil)
	w = httptest.NewRecorder()
	h.HandleGetWeek(w, bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	svc := newTestService(memory.New().GetMealPlansStorage(), newLookup(), WithLocation(loc))
	svc.now = func() time.Time { return time.Date(2024, 1, 6, 20, 0, 0, 0, time.UTC) }

	if got := svc.Today(); got.Day() != 7 || got.Location() != loc {
		t.Errorf("expected Jan 7 in UTC+10, got %v", got)
	}
}
