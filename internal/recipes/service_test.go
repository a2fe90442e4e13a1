package recipes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/logging"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/storage/memory"
	"github.com/fdg312/meal-planner/internal/themealdb"
	"github.com/fdg312/meal-planner/internal/userctx"
)

type fakeSource struct {
	mu      sync.Mutex
	meals   map[string]themealdb.Meal
	err     error
	lookups atomic.Int32
	delay   time.Duration
	last    string
}

func newFakeSource(meals ...themealdb.Meal) *fakeSource {
	f := &fakeSource{meals: make(map[string]themealdb.Meal)}
	for _, m := range meals {
		f.meals[m.ID] = m
	}
	return f
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.last = call
	f.mu.Unlock()
}

func (f *fakeSource) all() []themealdb.Meal {
	out := make([]themealdb.Meal, 0, len(f.meals))
	for _, m := range f.meals {
		out = append(out, m)
	}
	return out
}

func (f *fakeSource) SearchByName(ctx context.Context, name string) ([]themealdb.Meal, error) {
	f.record("search:" + name)
	return f.all(), f.err
}

func (f *fakeSource) LookupByID(ctx context.Context, id string) (*themealdb.Meal, error) {
	f.lookups.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meals[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeSource) RandomN(ctx context.Context, n int) ([]themealdb.Meal, error) {
	f.record("random")
	return f.all(), f.err
}

func (f *fakeSource) Categories(ctx context.Context) ([]themealdb.Category, error) {
	return []themealdb.Category{{ID: "1", Name: "Beef"}}, f.err
}

func (f *fakeSource) ListAreas(ctx context.Context) ([]string, error) {
	return []string{"Italian"}, f.err
}

func (f *fakeSource) ListIngredients(ctx context.Context) ([]themealdb.Ingredient, error) {
	out := make([]themealdb.Ingredient, 150)
	for i := range out {
		out[i] = themealdb.Ingredient{Name: "Ingredient"}
	}
	return out, f.err
}

func (f *fakeSource) FilterByIngredient(ctx context.Context, ingredient string) ([]themealdb.Meal, error) {
	f.record("ingredient:" + ingredient)
	return f.all(), f.err
}

func (f *fakeSource) FilterByCategory(ctx context.Context, category string) ([]themealdb.Meal, error) {
	f.record("category:" + category)
	return f.all(), f.err
}

func (f *fakeSource) FilterByArea(ctx context.Context, area string) ([]themealdb.Meal, error) {
	f.record("area:" + area)
	return f.all(), f.err
}

func arrabiata() themealdb.Meal {
	m := mealWith(map[int][2]string{
		1: {"penne rigate", "1 pound"},
		2: {"olive oil", "1/4 cup"},
	})
	m.ID = "52771"
	m.Name = "Spicy Arrabiata Penne"
	m.Category = "Vegetarian"
	m.Area = "Italian"
	return m
}

func newTestService(src *fakeSource) (*Service, storage.RecipesStorage) {
	store := memory.New().GetRecipesStorage()
	return NewService(store, src, logging.Discard(), time.Hour), store
}

func TestGetRecipeByIDImportsOnFirstUse(t *testing.T) {
	src := newFakeSource(arrabiata())
	svc, store := newTestService(src)
	ctx := context.Background()

	r, err := svc.GetRecipeByID(ctx, "52771")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == "" || r.ID == "52771" || r.Title != "Spicy Arrabiata Penne" {
		t.Errorf("expected stored recipe with a local id, got %+v", r)
	}

	again, err := svc.GetRecipeByID(ctx, "52771")
	if err != nil || again.ID != r.ID {
		t.Errorf("expected cached recipe %s, got %s (err %v)", r.ID, again.ID, err)
	}
	if src.lookups.Load() != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", src.lookups.Load())
	}

	byLocal, err := svc.GetRecipeByID(ctx, r.ID)
	if err != nil || byLocal.MealDBID != "52771" {
		t.Errorf("expected lookup by local id, got %+v (err %v)", byLocal, err)
	}

	if _, _, err := store.List(ctx, storage.RecipeFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetRecipeByIDUnknown(t *testing.T) {
	svc, _ := newTestService(newFakeSource())

	_, err := svc.GetRecipeByID(context.Background(), "99999")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = svc.GetRecipeByID(context.Background(), "not-a-recipe")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown local id, got %v", err)
	}
}

func TestGetRecipeByIDUpstreamFailure(t *testing.T) {
	src := newFakeSource()
	src.err = themealdb.ErrUpstream
	svc, _ := newTestService(src)

	_, err := svc.GetRecipeByID(context.Background(), "52771")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestGetRecipeByIDDoesNotRefreshStale(t *testing.T) {
	src := newFakeSource(arrabiata())
	svc, store := newTestService(src)
	ctx := context.Background()

	stale := Normalize(arrabiata(), time.Now().Add(-48*time.Hour))
	stale.Title = "Old title"
	if err := store.Create(ctx, &stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := svc.GetRecipeByID(ctx, "52771")
	if err != nil || r.Title != "Old title" {
		t.Errorf("expected cached copy, got %q (err %v)", r.Title, err)
	}
	if src.lookups.Load() != 0 {
		t.Errorf("expected no upstream lookups, got %d", src.lookups.Load())
	}
}

func TestImportRefreshesStale(t *testing.T) {
	src := newFakeSource(arrabiata())
	svc, store := newTestService(src)
	ctx := context.Background()

	stale := Normalize(arrabiata(), time.Now().Add(-48*time.Hour))
	stale.Title = "Old title"
	store.Create(ctx, &stale)

	r, err := svc.ImportFromMealDB(ctx, "52771")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Spicy Arrabiata Penne" || r.ID != stale.ID {
		t.Errorf("expected refreshed recipe under the same id, got %+v", r)
	}
}

func TestImportServesCachedWhenRefreshFails(t *testing.T) {
	src := newFakeSource(arrabiata())
	svc, store := newTestService(src)
	ctx := context.Background()

	stale := Normalize(arrabiata(), time.Now().Add(-48*time.Hour))
	stale.Title = "Old title"
	store.Create(ctx, &stale)
	src.err = themealdb.ErrUpstream

	r, err := svc.ImportFromMealDB(ctx, "52771")
	if err != nil {
		t.Fatalf("expected cached copy, got error %v", err)
	}
	if r.Title != "Old title" {
		t.Errorf("expected cached title, got %q", r.Title)
	}
}

func TestImportConcurrentCallsStoreOnce(t *testing.T) {
	src := newFakeSource(arrabiata())
	src.delay = 20 * time.Millisecond
	svc, store := newTestService(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.ImportFromMealDB(ctx, "52771")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = r.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one stored recipe, got ids %v", ids)
		}
	}
	_, total, _ := store.List(ctx, storage.RecipeFilter{})
	if total != 1 {
		t.Errorf("expected 1 stored recipe, got %d", total)
	}
}

func TestImportSurvivesFirstCallerCancel(t *testing.T) {
	src := newFakeSource(arrabiata())
	src.delay = 200 * time.Millisecond
	svc, _ := newTestService(src)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ImportFromMealDB(ctx, "52771")
		firstErr <- err
	}()

	deadline := time.Now().Add(time.Second)
	for src.lookups.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	var got storage.Recipe
	go func() {
		r, err := svc.ImportFromMealDB(context.Background(), "52771")
		got = r
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to get context.Canceled, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("expected the waiting caller to succeed, got %v", err)
	}
	if got.Title != "Spicy Arrabiata Penne" {
		t.Errorf("unexpected recipe %+v", got)
	}
	if src.lookups.Load() != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", src.lookups.Load())
	}
}

func TestImportRejectsNonNumericID(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	if _, err := svc.ImportFromMealDB(context.Background(), "abc"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSearchPriority(t *testing.T) {
	tests := []struct {
		params SearchParams
		want   string
	}{
		{SearchParams{Query: "pasta", Category: "Beef"}, "search:pasta"},
		{SearchParams{Category: "Beef", Area: "Italian"}, "category:Beef"},
		{SearchParams{Area: "Italian", Ingredient: "Egg"}, "area:Italian"},
		{SearchParams{Ingredient: "Egg"}, "ingredient:Egg"},
		{SearchParams{}, "random"},
	}
	for _, tt := range tests {
		src := newFakeSource(arrabiata())
		svc, store := newTestService(src)
		got, err := svc.Search(context.Background(), tt.params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if src.last != tt.want {
			t.Errorf("expected call %q, got %q", tt.want, src.last)
		}
		if len(got) != 1 || got[0].ID != "" {
			t.Errorf("expected one unsaved result, got %+v", got)
		}
		if _, total, _ := store.List(context.Background(), storage.RecipeFilter{}); total != 0 {
			t.Errorf("expected search results not to be stored, got %d", total)
		}
	}
}

func TestIngredientsDefaultLimit(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	ings, err := svc.Ingredients(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ings) != 100 {
		t.Errorf("expected 100 ingredients, got %d", len(ings))
	}
}

func TestCreateUpdateDeleteOwnership(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", CreateRecipeRequest{Title: "Toast"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without ingredients, got %v", err)
	}

	r, err := svc.Create(ctx, "u1", CreateRecipeRequest{Title: "Toast", Ingredients: []string{"Bread", " Butter "}, Category: "Breakfast"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DataSource != storage.SourceCustom || !r.IsPublic || r.Servings != DefaultServings {
		t.Errorf("unexpected defaults: %+v", r)
	}
	if r.Ingredients[1] != "Butter" || r.Nutrition.Calories != 400 {
		t.Errorf("expected trimmed ingredients and estimated nutrition, got %v %+v", r.Ingredients, r.Nutrition)
	}

	title := "Cheese toast"
	if _, err := svc.Update(ctx, "u2", r.ID, UpdateRecipeRequest{Title: &title}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another user, got %v", err)
	}
	updated, err := svc.Update(ctx, "u1", r.ID, UpdateRecipeRequest{Title: &title})
	if err != nil || updated.Title != title {
		t.Errorf("expected updated title, got %q (err %v)", updated.Title, err)
	}

	if err := svc.Delete(ctx, "u2", r.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden delete, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", r.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := svc.GetRecipeByID(ctx, r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected deleted recipe to be gone, got %v", err)
	}
}

func TestPrivateRecipeHiddenFromOthers(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	ctx := context.Background()
	private := false
	r, err := svc.Create(ctx, "u1", CreateRecipeRequest{Title: "Secret", Ingredients: []string{"Salt"}, IsPublic: &private})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, "u2", r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
	if _, err := svc.Get(ctx, "u1", r.ID); err != nil {
		t.Errorf("expected author to read it, got %v", err)
	}
}

func TestHandleGetUnknownRecipe(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	h := NewHandler(svc, logging.Discard())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/recipes/{id}", h.HandleGet)

	req := httptest.NewRequest(http.MethodGet, "/v1/recipes/99999", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Errorf("expected not_found code, got %s", w.Body.String())
	}
}

func TestHandleSearchUpstreamDown(t *testing.T) {
	src := newFakeSource()
	src.err = themealdb.ErrUpstream
	svc, _ := newTestService(src)
	h := NewHandler(svc, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/recipes/search?q=soup", nil)
	w := httptest.NewRecorder()
	h.HandleSearch(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}

func TestHandleCreate(t *testing.T) {
	svc, _ := newTestService(newFakeSource())
	h := NewHandler(svc, logging.Discard())

	body := `{"title":"Salad","ingredients":["Lettuce"],"diet":["Vegan"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/recipes", strings.NewReader(body))
	req = req.WithContext(userctx.WithUserID(req.Context(), "u1"))
	w := httptest.NewRecorder()
	h.HandleCreate(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"created_by":"u1"`) {
		t.Errorf("expected created_by in body, got %s", w.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPost, "/v1/recipes", strings.NewReader(`{"title":"X","ingredients":["a"],"diet":["Paleo"]}`))
	bad = bad.WithContext(userctx.WithUserID(bad.Context(), "u1"))
	w = httptest.NewRecorder()
	h.HandleCreate(w, bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
