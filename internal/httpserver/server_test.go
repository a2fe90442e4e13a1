package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fdg312/meal-planner/internal/blob"
	"github.com/fdg312/meal-planner/internal/config"
	"github.com/fdg312/meal-planner/internal/logging"
	"github.com/fdg312/meal-planner/internal/storage/memory"
	"github.com/fdg312/meal-planner/internal/themealdb"
)

// offlineSource answers every upstream call with ErrUpstream.
type offlineSource struct{}

func (offlineSource) SearchByName(context.Context, string) ([]themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) LookupByID(context.Context, string) (*themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) RandomN(context.Context, int) ([]themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) Categories(context.Context) ([]themealdb.Category, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) ListAreas(context.Context) ([]string, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) ListIngredients(context.Context) ([]themealdb.Ingredient, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) FilterByIngredient(context.Context, string) ([]themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) FilterByCategory(context.Context, string) ([]themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}
func (offlineSource) FilterByArea(context.Context, string) ([]themealdb.Meal, error) {
	return nil, themealdb.ErrUpstream
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           8080,
		AuthMode:       config.AuthModePassword,
		AuthRequired:   true,
		JWTSecret:      "test-secret-key-for-testing-only",
		JWTIssuer:      "meal-planner-test",
		JWTTTLMinutes:  60,
		BcryptCost:     4,
		MetricsEnabled: true,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(context.Background(), cfg, logging.Discard(),
		WithStorage(memory.New()),
		WithBlobStore(blob.NewMemoryStore(), config.BlobModeLocal),
		WithRecipeSource(offlineSource{}),
	)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := call(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Storage != "memory" || resp.Blob != config.BlobModeLocal {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := call(t, srv.Handler(), http.MethodPost, "/healthz", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())
	h := srv.Handler()

	call(t, h, http.MethodGet, "/healthz", "", nil)
	w := call(t, h, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `mealplanner_http_requests_total{method="GET",route="GET /healthz",status="200"}`) {
		t.Errorf("expected healthz request counter, got:\n%s", w.Body.String())
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	srv := newTestServer(t, cfg)

	if w := call(t, srv.Handler(), http.MethodGet, "/metrics", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	srv := newTestServer(t, testConfig())
	h := srv.Handler()

	for _, path := range []string{"/v1/meal-plans/week", "/v1/grocery-lists", "/v1/users/me", "/v1/grocery-exports"} {
		if w := call(t, h, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, w.Code)
		}
	}
	if w := call(t, h, http.MethodGet, "/v1/recipes", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected public recipe list, got %d", w.Code)
	}
}

func TestPlanningFlow(t *testing.T) {
	srv := newTestServer(t, testConfig())
	h := srv.Handler()

	w := call(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email":    "cook@example.com",
		"username": "cook",
		"password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var session struct {
		AccessToken string `json:"access_token"`
	}
	json.NewDecoder(w.Body).Decode(&session)
	token := session.AccessToken

	w = call(t, h, http.MethodPost, "/v1/recipes", token, map[string]any{
		"title":       "Omelette",
		"ingredients": []string{"2 eggs", "milk"},
		"category":    "Breakfast",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create recipe: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var recipe struct {
		ID string `json:"id"`
	}
	json.NewDecoder(w.Body).Decode(&recipe)

	w = call(t, h, http.MethodPost, "/v1/meal-plans/meals", token, map[string]any{
		"date":      "2024-01-08",
		"meal_type": "Breakfast",
		"recipe_id": recipe.ID,
		"servings":  1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add meal: expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = call(t, h, http.MethodGet, "/v1/meal-plans/grocery-list?start=2024-01-07&end=2024-01-13", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("grocery list: expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var flat struct {
		Items   []string `json:"items"`
		IsEmpty bool     `json:"is_empty"`
	}
	json.NewDecoder(w.Body).Decode(&flat)
	if flat.IsEmpty || len(flat.Items) != 2 {
		t.Errorf("expected two grocery items, got %+v", flat)
	}

	w = call(t, h, http.MethodPost, "/v1/grocery-exports", token, map[string]string{
		"format": "csv",
		"start":  "2024-01-07",
		"end":    "2024-01-13",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("export: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var export struct {
		ID string `json:"id"`
	}
	json.NewDecoder(w.Body).Decode(&export)

	w = call(t, h, http.MethodGet, "/v1/grocery-exports/"+export.ID+"/download", token, nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "item,count\n") {
		t.Errorf("download: expected csv body, got %d %q", w.Code, w.Body.String())
	}

	if w := call(t, h, http.MethodDelete, "/v1/users/me", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete account: expected status 204, got %d", w.Code)
	}
	if w := call(t, h, http.MethodGet, "/v1/grocery-exports/"+export.ID, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected export to be removed with the account, got %d", w.Code)
	}
}
