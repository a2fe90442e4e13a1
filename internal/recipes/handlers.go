package recipes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/userctx"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleSearch handles GET /v1/recipes/search
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := SearchParams{
		Query:      q.Get("q"),
		Category:   q.Get("category"),
		Area:       q.Get("area"),
		Ingredient: q.Get("ingredient"),
		Limit:      queryInt(r, "limit", 0),
	}

	found, err := h.service.Search(r.Context(), params)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Recipes: ToDTOs(found), Count: len(found)})
}

// HandleRandom handles GET /v1/recipes/random
func (h *Handler) HandleRandom(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Random(r.Context(), queryInt(r, "count", 1))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Recipes: ToDTOs(found), Count: len(found)})
}

// HandleCategories handles GET /v1/recipes/categories
func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// HandleAreas handles GET /v1/recipes/areas
func (h *Handler) HandleAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.Areas(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas})
}

// HandleIngredients handles GET /v1/recipes/ingredients
func (h *Handler) HandleIngredients(w http.ResponseWriter, r *http.Request) {
	ings, err := h.service.Ingredients(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ings})
}

// HandleTags handles GET /v1/recipes/tags
func (h *Handler) HandleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.Tags(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// HandleList handles GET /v1/recipes
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	q := r.URL.Query()
	items, page, err := h.service.List(r.Context(), userID, ListParams{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Area:     q.Get("area"),
		Diet:     q.Get("diet"),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 20),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Recipes: ToDTOs(items), Pagination: page})
}

// HandleGet handles GET /v1/recipes/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	recipe, err := h.service.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(recipe))
}

// HandleImport handles POST /v1/recipes/import/{mealdbId}
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.service.ImportFromMealDB(r.Context(), r.PathValue("mealdbId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(recipe))
}

// HandleCreate handles POST /v1/recipes
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	recipe, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToDTO(recipe))
}

// HandleUpdate handles PUT /v1/recipes/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	var req UpdateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	recipe, err := h.service.Update(r.Context(), userID, r.PathValue("id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(recipe))
}

// HandleDelete handles DELETE /v1/recipes/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	if err := h.service.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.KindOf(err) == "" {
		h.log.WithError(err).Error("recipes: unexpected error")
	}
	apperr.Write(w, err)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
