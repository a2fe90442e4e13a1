package mealplans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/grocery"
	"github.com/fdg312/meal-planner/internal/nutrition"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/sirupsen/logrus"
)

const DefaultSaveRetries = 3

// RecipeLookup resolves the recipe a meal entry snapshots.
type RecipeLookup interface {
	GetRecipeByID(ctx context.Context, id string) (storage.Recipe, error)
}

// Recorder receives mutation outcomes. *telemetry.Metrics satisfies it.
type Recorder interface {
	MealMutation(operation string, err error)
	SaveConflict()
}

type nopRecorder struct{}

func (nopRecorder) MealMutation(string, error) {}
func (nopRecorder) SaveConflict()              {}

// Service handles meal plans business logic.
type Service struct {
	store   storage.MealPlansStorage
	recipes RecipeLookup
	log     logrus.FieldLogger
	metrics Recorder
	loc     *time.Location
	retries int
	now     func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithSaveRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewService creates a new meal plans service.
func NewService(store storage.MealPlansStorage, recipes RecipeLookup, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		recipes: recipes,
		log:     log,
		metrics: nopRecorder{},
		loc:     time.UTC,
		retries: DefaultSaveRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the calendar location dates are parsed in.
func (s *Service) Location() *time.Location { return s.loc }

// Today is the current date in the service location.
func (s *Service) Today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

// FindOrCreate returns the plan of userID for the week containing date, creating
// it on first access. A concurrent create of the same week resolves to the winner.
func (s *Service) FindOrCreate(ctx context.Context, userID string, date time.Time) (*Plan, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("unauthorized", "sign in to plan meals")
	}
	fresh := NewPlan(userID, date)

	rec, found, err := s.store.Load(ctx, userID, fresh.WeekID)
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}
	if found {
		return FromRecord(rec), nil
	}

	if err := s.store.Create(ctx, &fresh.MealPlan); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("failed to create meal plan: %w", err)
		}
		rec, found, err = s.store.Load(ctx, userID, fresh.WeekID)
		if err != nil {
			return nil, fmt.Errorf("failed to load meal plan: %w", err)
		}
		if !found {
			return nil, apperr.Conflict("meal plan for week %s changed concurrently", fresh.WeekID)
		}
		return FromRecord(rec), nil
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "week_id": fresh.WeekID}).Debug("meal plan created")
	return fresh, nil
}

// mutate runs fn against the freshest copy of the plan and saves it, retrying on
// version conflicts.
func (s *Service) mutate(ctx context.Context, op string, userID string, date time.Time, create bool, fn func(p *Plan) error) (*Plan, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("unauthorized", "sign in to plan meals")
	}
	weekID := weekdate.WeekID(weekdate.WeekStart(date))
	entry := s.log.WithFields(logrus.Fields{"user_id": userID, "week_id": weekID, "op": op})

	for attempt := 1; ; attempt++ {
		var plan *Plan
		if create {
			p, err := s.FindOrCreate(ctx, userID, date)
			if err != nil {
				return nil, err
			}
			plan = p
		} else {
			rec, found, err := s.store.Load(ctx, userID, weekID)
			if err != nil {
				return nil, fmt.Errorf("failed to load meal plan: %w", err)
			}
			if !found {
				return nil, apperr.NotFound("no meal plan for week %s", weekID)
			}
			plan = FromRecord(rec)
		}

		if err := fn(plan); err != nil {
			return nil, err
		}
		plan.RecomputeTotals()

		err := s.store.Save(ctx, &plan.MealPlan)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("failed to save meal plan: %w", err)
		}

		s.metrics.SaveConflict()
		if attempt >= s.retries {
			entry.WithField("attempts", attempt).Warn("meal plan save conflict, giving up")
			return nil, apperr.Conflict("meal plan for week %s was modified concurrently, reload and retry", weekID)
		}
		entry.WithField("attempt", attempt).Debug("meal plan save conflict, retrying")
	}
}

// AddMeal validates the request, snapshots the recipe and stores it in its slot.
// A failed recipe lookup aborts before the plan is touched.
func (s *Service) AddMeal(ctx context.Context, userID string, req AddMealRequest) (entry storage.MealEntry, plan *Plan, err error) {
	defer func() { s.metrics.MealMutation("add", err) }()

	if userID == "" {
		return storage.MealEntry{}, nil, apperr.Unauthorized("unauthorized", "sign in to plan meals")
	}
	date, err := req.Validate(s.loc)
	if err != nil {
		return storage.MealEntry{}, nil, err
	}

	recipe, err := s.recipes.GetRecipeByID(ctx, req.RecipeID)
	if err != nil {
		return storage.MealEntry{}, nil, err
	}

	plan, err = s.mutate(ctx, "add", userID, date, true, func(p *Plan) error {
		e, err := p.AddMeal(date, req.MealType, recipe, req.Servings, req.Notes)
		entry = e
		return err
	})
	if err != nil {
		return storage.MealEntry{}, nil, err
	}

	// ids are assigned on save
	for _, e := range plan.Entries {
		if e.DateKey == entry.DateKey && e.MealType == entry.MealType {
			entry = e
		}
	}
	return entry, plan, nil
}

// RemoveMeal clears a slot. A week without a plan is NotFound; an empty slot is not.
func (s *Service) RemoveMeal(ctx context.Context, userID string, req MealSlotRequest) (plan *Plan, err error) {
	defer func() { s.metrics.MealMutation("remove", err) }()

	date, err := req.Validate(s.loc)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "remove", userID, date, false, func(p *Plan) error {
		p.RemoveMeal(date, req.MealType)
		return nil
	})
}

func (s *Service) SetMealCompleted(ctx context.Context, userID string, req SetCompletedRequest) (plan *Plan, err error) {
	defer func() { s.metrics.MealMutation("complete", err) }()

	date, err := req.Validate(s.loc)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "complete", userID, date, false, func(p *Plan) error {
		return p.SetCompleted(date, req.MealType, req.Completed)
	})
}

// GetWeek returns the plan for the week containing date together with its nutrition.
func (s *Service) GetWeek(ctx context.Context, userID string, date time.Time) (WeekResponse, error) {
	plan, err := s.FindOrCreate(ctx, userID, date)
	if err != nil {
		return WeekResponse{}, err
	}
	summary := plan.WeeklyNutrition()
	return WeekResponse{
		MealPlan:         ToDTO(plan),
		Week:             weekdate.For(date),
		Nutrition:        summary,
		AverageDaily:     nutrition.AverageDaily(summary),
		PreviousWeekDate: weekdate.DateKey(weekdate.PreviousWeek(date)),
		NextWeekDate:     weekdate.DateKey(weekdate.NextWeek(date)),
	}, nil
}

// EntriesForRange collects the entries dated within [start, end] from every plan
// of userID overlapping the range, with the ids of the plans that contributed.
func (s *Service) EntriesForRange(ctx context.Context, userID string, start, end time.Time) ([]storage.MealEntry, []string, error) {
	plans, err := s.store.ListOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list meal plans: %w", err)
	}

	var entries []storage.MealEntry
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		selected := grocery.SelectEntries(p.Entries, &start, &end)
		if len(selected) == 0 {
			continue
		}
		entries = append(entries, selected...)
		ids = append(ids, p.ID)
	}
	return entries, ids, nil
}

// GroceryListForRange derives the flat list over [start, end] from every plan
// overlapping it. A nil end means start + 6 days. Plans that contributed meals
// are marked as having a generated shopping list.
func (s *Service) GroceryListForRange(ctx context.Context, userID string, start time.Time, end *time.Time) (GroceryListResponse, error) {
	if userID == "" {
		return GroceryListResponse{}, apperr.Unauthorized("unauthorized", "sign in to plan meals")
	}
	last := start.AddDate(0, 0, 6)
	if end != nil {
		last = *end
	}
	if weekdate.DateKey(last) < weekdate.DateKey(start) {
		return GroceryListResponse{}, apperr.Validation("end date must not be before start date")
	}

	entries, ids, err := s.EntriesForRange(ctx, userID, start, last)
	if err != nil {
		return GroceryListResponse{}, err
	}

	items := grocery.FlatList(entries, &start, &last)
	if !grocery.IsPlaceholder(items) {
		now := s.now().UTC()
		for _, id := range ids {
			// best effort, the list is already derived
			if err := s.MarkShoppingListGenerated(ctx, userID, id, now); err != nil {
				s.log.WithError(err).WithField("meal_plan_id", id).Warn("failed to flag shopping list generation")
			}
		}
	}

	return GroceryListResponse{
		StartDate:    weekdate.DateKey(start),
		EndDate:      weekdate.DateKey(last),
		Items:        items,
		IsEmpty:      grocery.IsPlaceholder(items),
		MealPlanIDs:  ids,
		MealsCounted: len(entries),
	}, nil
}

// MarkShoppingListGenerated records that a grocery list was produced from plan id.
func (s *Service) MarkShoppingListGenerated(ctx context.Context, userID, id string, at time.Time) error {
	for attempt := 1; ; attempt++ {
		rec, err := s.store.Get(ctx, userID, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.NotFound("meal plan %s not found", id)
			}
			return fmt.Errorf("failed to load meal plan: %w", err)
		}
		plan := FromRecord(rec)
		plan.ShoppingListGenerated = true
		plan.LastShoppingListAt = &at

		err = s.store.Save(ctx, &plan.MealPlan)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) || attempt >= s.retries {
			return fmt.Errorf("failed to save meal plan: %w", err)
		}
		s.metrics.SaveConflict()
	}
}

func (s *Service) List(ctx context.Context, userID string, isActive *bool, limit, offset int) (ListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	recs, total, err := s.store.List(ctx, userID, storage.MealPlanFilter{IsActive: isActive, Limit: limit, Offset: offset})
	if err != nil {
		return ListResponse{}, fmt.Errorf("failed to list meal plans: %w", err)
	}
	dtos := make([]MealPlanDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = ToDTO(FromRecord(rec))
	}
	return ListResponse{MealPlans: dtos, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*Plan, error) {
	rec, err := s.store.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("meal plan %s not found", id)
		}
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}
	return FromRecord(rec), nil
}

// Record returns the stored plan of userID without the aggregate wrapper.
func (s *Service) Record(ctx context.Context, userID, id string) (storage.MealPlan, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return storage.MealPlan{}, err
	}
	return p.MealPlan, nil
}

// Update changes the plan notes or active flag.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdatePlanRequest) (plan *Plan, err error) {
	defer func() { s.metrics.MealMutation("update", err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		plan, err = s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if req.Notes != nil {
			plan.UpdateNotes(*req.Notes)
		}
		if req.IsActive != nil {
			plan.IsActive = *req.IsActive
		}
		plan.RecomputeTotals()

		err = s.store.Save(ctx, &plan.MealPlan)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("failed to save meal plan: %w", err)
		}
		s.metrics.SaveConflict()
		if attempt >= s.retries {
			return nil, apperr.Conflict("meal plan %s was modified concurrently, reload and retry", id)
		}
	}
}

func (s *Service) Delete(ctx context.Context, userID, id string) (err error) {
	defer func() { s.metrics.MealMutation("delete", err) }()

	if err := s.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("meal plan %s not found", id)
		}
		return fmt.Errorf("failed to delete meal plan: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every plan of userID.
func (s *Service) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete meal plans: %w", err)
	}
	return nil
}
