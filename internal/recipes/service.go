package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/themealdb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSearchRandom    = 10
	maxRandom              = 20
	defaultIngredientLimit = 100

	// importTimeout bounds a shared TheMealDB import.
	importTimeout = 30 * time.Second
)

// Source is the subset of the TheMealDB client the catalogue needs.
type Source interface {
	SearchByName(ctx context.Context, name string) ([]themealdb.Meal, error)
	LookupByID(ctx context.Context, id string) (*themealdb.Meal, error)
	RandomN(ctx context.Context, n int) ([]themealdb.Meal, error)
	Categories(ctx context.Context) ([]themealdb.Category, error)
	ListAreas(ctx context.Context) ([]string, error)
	ListIngredients(ctx context.Context) ([]themealdb.Ingredient, error)
	FilterByIngredient(ctx context.Context, ingredient string) ([]themealdb.Meal, error)
	FilterByCategory(ctx context.Context, category string) ([]themealdb.Meal, error)
	FilterByArea(ctx context.Context, area string) ([]themealdb.Meal, error)
}

// Service is the recipe catalogue. It doubles as the recipe lookup used by meal plans.
type Service struct {
	store      storage.RecipesStorage
	source     Source
	log        logrus.FieldLogger
	staleAfter time.Duration
	now        func() time.Time
	imports    singleflight.Group
}

func NewService(store storage.RecipesStorage, source Source, log logrus.FieldLogger, staleAfter time.Duration) *Service {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Service{
		store:      store,
		source:     source,
		log:        log,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// GetRecipeByID resolves a local id, or a TheMealDB id through the local cache.
// A cached record is returned even when stale.
func (s *Service) GetRecipeByID(ctx context.Context, id string) (storage.Recipe, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Recipe{}, apperr.Validation("recipe id is required")
	}

	r, err := s.store.Get(ctx, id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Recipe{}, fmt.Errorf("failed to load recipe: %w", err)
	}
	if !isMealDBID(id) {
		return storage.Recipe{}, apperr.NotFound("recipe %s not found", id)
	}
	return s.findOrCreate(ctx, id, false)
}

// ImportFromMealDB stores a TheMealDB recipe locally, refreshing a stale copy.
func (s *Service) ImportFromMealDB(ctx context.Context, mealDBID string) (storage.Recipe, error) {
	mealDBID = strings.TrimSpace(mealDBID)
	if !isMealDBID(mealDBID) {
		return storage.Recipe{}, apperr.Validation("mealdb id must be numeric")
	}
	return s.findOrCreate(ctx, mealDBID, true)
}

func (s *Service) findOrCreate(ctx context.Context, mealDBID string, refreshStale bool) (storage.Recipe, error) {
	key := mealDBID
	if refreshStale {
		key += ":refresh"
	}
	ch := s.imports.DoChan(key, func() (any, error) {
		// Runs detached from the cancellation of the caller that started it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), importTimeout)
		defer cancel()
		return s.findOrCreateOnce(flightCtx, mealDBID, refreshStale)
	})

	select {
	case <-ctx.Done():
		return storage.Recipe{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return storage.Recipe{}, res.Err
		}
		return res.Val.(storage.Recipe), nil
	}
}

func (s *Service) findOrCreateOnce(ctx context.Context, mealDBID string, refreshStale bool) (storage.Recipe, error) {
	existing, err := s.store.GetByMealDBID(ctx, mealDBID)
	switch {
	case err == nil:
		if !refreshStale || !IsStale(existing.LastUpdated, s.now(), s.staleAfter) {
			return existing, nil
		}
		return s.refresh(ctx, existing), nil

	case errors.Is(err, storage.ErrNotFound):
		meal, err := s.source.LookupByID(ctx, mealDBID)
		if err != nil {
			return storage.Recipe{}, apperr.Upstream(err, "recipe source unavailable")
		}
		if meal == nil {
			return storage.Recipe{}, apperr.NotFound("recipe %s not found", mealDBID)
		}

		r := Normalize(*meal, s.now())
		r.ID = uuid.NewString()
		if err := s.store.Create(ctx, &r); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// Another instance imported it first.
				return s.store.GetByMealDBID(ctx, mealDBID)
			}
			return storage.Recipe{}, fmt.Errorf("failed to store recipe: %w", err)
		}
		s.log.WithFields(logrus.Fields{"recipe_id": r.ID, "mealdb_id": mealDBID}).Info("recipe imported")
		return r, nil

	default:
		return storage.Recipe{}, fmt.Errorf("failed to load recipe: %w", err)
	}
}

// refresh re-normalizes a stale record. Failures keep serving the cached copy.
func (s *Service) refresh(ctx context.Context, existing storage.Recipe) storage.Recipe {
	entry := s.log.WithField("mealdb_id", existing.MealDBID)

	meal, err := s.source.LookupByID(ctx, existing.MealDBID)
	if err != nil || meal == nil {
		entry.WithError(err).Warn("recipe refresh failed, serving cached copy")
		return existing
	}

	fresh := Normalize(*meal, s.now())
	fresh.ID = existing.ID
	fresh.CreatedAt = existing.CreatedAt
	fresh.CreatedBy = existing.CreatedBy
	fresh.IsPublic = existing.IsPublic
	if err := s.store.Update(ctx, &fresh); err != nil {
		entry.WithError(err).Warn("failed to store refreshed recipe")
		return existing
	}
	entry.Debug("recipe refreshed")
	return fresh
}

// Search queries TheMealDB. Priority: query, category, area, ingredient,
// otherwise ten random meals. Results are not stored.
func (s *Service) Search(ctx context.Context, p SearchParams) ([]storage.Recipe, error) {
	var (
		meals []themealdb.Meal
		err   error
	)
	switch {
	case strings.TrimSpace(p.Query) != "":
		meals, err = s.source.SearchByName(ctx, strings.TrimSpace(p.Query))
	case p.Category != "":
		meals, err = s.source.FilterByCategory(ctx, p.Category)
	case p.Area != "":
		meals, err = s.source.FilterByArea(ctx, p.Area)
	case p.Ingredient != "":
		meals, err = s.source.FilterByIngredient(ctx, p.Ingredient)
	default:
		meals, err = s.source.RandomN(ctx, defaultSearchRandom)
	}
	if err != nil {
		return nil, apperr.Upstream(err, "recipe search failed")
	}

	if p.Limit > 0 && len(meals) > p.Limit {
		meals = meals[:p.Limit]
	}
	return s.normalizeAll(meals), nil
}

func (s *Service) Random(ctx context.Context, count int) ([]storage.Recipe, error) {
	if count <= 0 {
		count = 1
	}
	if count > maxRandom {
		count = maxRandom
	}
	meals, err := s.source.RandomN(ctx, count)
	if err != nil {
		return nil, apperr.Upstream(err, "random recipes unavailable")
	}
	return s.normalizeAll(meals), nil
}

func (s *Service) normalizeAll(meals []themealdb.Meal) []storage.Recipe {
	now := s.now()
	out := make([]storage.Recipe, len(meals))
	for i, m := range meals {
		out[i] = Normalize(m, now)
	}
	return out
}

func (s *Service) Categories(ctx context.Context) ([]themealdb.Category, error) {
	cats, err := s.source.Categories(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "categories unavailable")
	}
	return cats, nil
}

func (s *Service) Areas(ctx context.Context) ([]string, error) {
	areas, err := s.source.ListAreas(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "areas unavailable")
	}
	return areas, nil
}

func (s *Service) Ingredients(ctx context.Context, limit int) ([]themealdb.Ingredient, error) {
	if limit <= 0 {
		limit = defaultIngredientLimit
	}
	ings, err := s.source.ListIngredients(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "ingredients unavailable")
	}
	if len(ings) > limit {
		ings = ings[:limit]
	}
	return ings, nil
}

// List pages through locally stored recipes visible to userID.
func (s *Service) List(ctx context.Context, userID string, p ListParams) ([]storage.Recipe, Pagination, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	items, total, err := s.store.List(ctx, storage.RecipeFilter{
		Search:   strings.TrimSpace(p.Search),
		Category: p.Category,
		Area:     p.Area,
		Diet:     p.Diet,
		Visible:  userID,
		Limit:    p.Limit,
		Offset:   (p.Page - 1) * p.Limit,
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list recipes: %w", err)
	}
	return items, NewPagination(p.Page, p.Limit, total), nil
}

// Get returns a stored recipe if it is public or owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (storage.Recipe, error) {
	r, err := s.GetRecipeByID(ctx, id)
	if err != nil {
		return storage.Recipe{}, err
	}
	if !r.IsPublic && r.CreatedBy != userID {
		return storage.Recipe{}, apperr.NotFound("recipe %s not found", id)
	}
	return r, nil
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRecipeRequest) (storage.Recipe, error) {
	if userID == "" {
		return storage.Recipe{}, apperr.Unauthorized("unauthorized", "sign in to create recipes")
	}
	if err := req.Validate(); err != nil {
		return storage.Recipe{}, err
	}

	now := s.now()
	r := storage.Recipe{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(req.Title),
		Ingredients:         trimAll(req.Ingredients),
		DetailedIngredients: req.DetailedIngredients,
		Tags:                trimAll(req.Tags),
		Diet:                req.Diet,
		Instructions:        req.Instructions,
		Category:            req.Category,
		Area:                req.Area,
		YoutubeURL:          req.YoutubeURL,
		Source:              req.Source,
		PrepTime:            req.PrepTime,
		CookTime:            req.CookTime,
		Servings:            req.Servings,
		Image:               req.Image,
		DataSource:          storage.SourceCustom,
		CreatedBy:           userID,
		IsPublic:            req.IsPublic == nil || *req.IsPublic,
		LastUpdated:         now,
	}
	if r.Servings == 0 {
		r.Servings = DefaultServings
	}
	if req.Nutrition != nil {
		r.Nutrition = *req.Nutrition
	} else {
		r.Nutrition = EstimateNutrition(SimpleIngredients(r), r.Category)
	}

	if err := s.store.Create(ctx, &r); err != nil {
		return storage.Recipe{}, fmt.Errorf("failed to create recipe: %w", err)
	}
	return r, nil
}

// Update edits an authored recipe. Meal entries keep the snapshot they were created with.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateRecipeRequest) (storage.Recipe, error) {
	if err := req.Validate(); err != nil {
		return storage.Recipe{}, err
	}
	r, err := s.owned(ctx, userID, id)
	if err != nil {
		return storage.Recipe{}, err
	}

	if req.Title != nil {
		r.Title = strings.TrimSpace(*req.Title)
	}
	if req.Ingredients != nil {
		r.Ingredients = trimAll(req.Ingredients)
	}
	if req.DetailedIngredients != nil {
		r.DetailedIngredients = req.DetailedIngredients
	}
	if req.Tags != nil {
		r.Tags = trimAll(req.Tags)
	}
	if req.Diet != nil {
		r.Diet = req.Diet
	}
	if req.Instructions != nil {
		r.Instructions = *req.Instructions
	}
	if req.Category != nil {
		r.Category = *req.Category
	}
	if req.Area != nil {
		r.Area = *req.Area
	}
	if req.Nutrition != nil {
		r.Nutrition = *req.Nutrition
	}
	if req.PrepTime != nil {
		r.PrepTime = req.PrepTime
	}
	if req.CookTime != nil {
		r.CookTime = req.CookTime
	}
	if req.Servings != nil {
		r.Servings = *req.Servings
	}
	if req.Image != nil {
		r.Image = *req.Image
	}
	if req.IsPublic != nil {
		r.IsPublic = *req.IsPublic
	}
	if len(r.Ingredients) == 0 && len(r.DetailedIngredients) == 0 {
		return storage.Recipe{}, apperr.Validation("a recipe needs at least one ingredient")
	}
	r.LastUpdated = s.now()

	if err := s.store.Update(ctx, &r); err != nil {
		return storage.Recipe{}, fmt.Errorf("failed to update recipe: %w", err)
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("recipe %s not found", id)
		}
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	return nil
}

func (s *Service) Tags(ctx context.Context) ([]string, error) {
	tags, err := s.store.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (storage.Recipe, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Recipe{}, apperr.NotFound("recipe %s not found", id)
		}
		return storage.Recipe{}, fmt.Errorf("failed to load recipe: %w", err)
	}
	if userID == "" || r.CreatedBy != userID {
		return storage.Recipe{}, apperr.Forbidden("only the author can modify this recipe")
	}
	return r, nil
}

func isMealDBID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
