package grocery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/sirupsen/logrus"
)

const DefaultListName = "Grocery List"

// PlanSource gives grocery documents read access to meal plans.
// *mealplans.Service satisfies it.
type PlanSource interface {
	Record(ctx context.Context, userID, id string) (storage.MealPlan, error)
	MarkShoppingListGenerated(ctx context.Context, userID, id string, at time.Time) error
}

// Service handles grocery list documents.
type Service struct {
	store storage.GroceryListsStorage
	plans PlanSource
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new grocery lists service.
func NewService(store storage.GroceryListsStorage, plans PlanSource, log logrus.FieldLogger) *Service {
	return &Service{store: store, plans: plans, log: log, now: time.Now}
}

func (s *Service) List(ctx context.Context, userID string, isActive *bool, page, limit int) (ListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	lists, total, err := s.store.List(ctx, userID, storage.GroceryListFilter{
		IsActive: isActive,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return ListResponse{}, fmt.Errorf("failed to list grocery lists: %w", err)
	}

	dtos := make([]ListDTO, len(lists))
	for i, l := range lists {
		dtos[i] = ToDTO(l)
	}
	pages := (total + limit - 1) / limit
	return ListResponse{
		GroceryLists: dtos,
		Pagination:   Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	}, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (storage.GroceryList, error) {
	l, err := s.store.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.GroceryList{}, apperr.NotFound("grocery list %s not found", id)
		}
		return storage.GroceryList{}, fmt.Errorf("failed to get grocery list: %w", err)
	}
	return l, nil
}

// Create stores a hand-made list. A referenced meal plan must belong to the caller.
func (s *Service) Create(ctx context.Context, userID string, req CreateListRequest) (storage.GroceryList, error) {
	if userID == "" {
		return storage.GroceryList{}, apperr.Unauthorized("unauthorized", "sign in to manage grocery lists")
	}
	if err := req.Validate(); err != nil {
		return storage.GroceryList{}, err
	}
	if req.MealPlanID != nil && *req.MealPlanID != "" {
		if _, err := s.plans.Record(ctx, userID, *req.MealPlanID); err != nil {
			return storage.GroceryList{}, err
		}
	} else {
		req.MealPlanID = nil
	}

	list := storage.GroceryList{
		UserID:     userID,
		Name:       strings.TrimSpace(req.Name),
		MealPlanID: req.MealPlanID,
		Items:      make([]storage.GroceryItem, 0, len(req.Items)),
		IsActive:   true,
		Notes:      strings.TrimSpace(req.Notes),
	}
	if list.Name == "" {
		list.Name = DefaultListName
	}
	if req.ShoppingDate != "" {
		d, _ := weekdate.ParseDateKey(req.ShoppingDate, time.UTC)
		list.ShoppingDate = &d
	}
	for _, in := range req.Items {
		var item storage.GroceryItem
		in.apply(&item)
		list.Items = append(list.Items, item)
	}

	if err := s.create(ctx, &list); err != nil {
		return storage.GroceryList{}, err
	}
	return list, nil
}

// GenerateFromMealPlan builds a document from a plan with the structured strategy
// and flags the plan as having a generated shopping list.
func (s *Service) GenerateFromMealPlan(ctx context.Context, userID string, req GenerateRequest) (storage.GroceryList, error) {
	if userID == "" {
		return storage.GroceryList{}, apperr.Unauthorized("unauthorized", "sign in to manage grocery lists")
	}
	if strings.TrimSpace(req.MealPlanID) == "" {
		return storage.GroceryList{}, apperr.Validation("meal_plan_id is required")
	}

	plan, err := s.plans.Record(ctx, userID, req.MealPlanID)
	if err != nil {
		return storage.GroceryList{}, err
	}

	start, end := weekdate.DateKey(plan.WeekStart), weekdate.DateKey(plan.WeekEnd)
	planID := plan.ID
	list := storage.GroceryList{
		UserID:     userID,
		Name:       strings.TrimSpace(req.Name),
		MealPlanID: &planID,
		Items:      StructuredList(EntryIngredients(plan.Entries)),
		IsActive:   true,
		Notes:      fmt.Sprintf("Generated from meal plan for %s - %s", start, end),
	}
	if list.Name == "" {
		list.Name = "Grocery List - Week of " + start
	}
	if err := s.create(ctx, &list); err != nil {
		return storage.GroceryList{}, err
	}

	if err := s.plans.MarkShoppingListGenerated(ctx, userID, plan.ID, s.now().UTC()); err != nil {
		s.log.WithError(err).WithField("meal_plan_id", plan.ID).Warn("failed to flag shopping list generation")
	}
	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"meal_plan_id":    plan.ID,
		"grocery_list_id": list.ID,
		"items":           len(list.Items),
	}).Info("grocery list generated")
	return list, nil
}

// GenerateFromWeek derives items from a raw weekly structure without storing anything.
func (s *Service) GenerateFromWeek(week WeeklyStructure) ([]ItemDTO, error) {
	if week == nil {
		return nil, apperr.Validation("week_data is required")
	}
	items := StructuredFromWeek(week)
	out := make([]ItemDTO, len(items))
	for i, it := range items {
		out[i] = ItemDTO{Name: it.Name, Amount: it.Amount, Unit: it.Unit, Category: it.Category}
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, req UpdateListRequest) (storage.GroceryList, error) {
	if err := req.Validate(); err != nil {
		return storage.GroceryList{}, err
	}
	return s.modify(ctx, userID, id, func(l *storage.GroceryList) error {
		if req.Name != nil {
			l.Name = strings.TrimSpace(*req.Name)
			if l.Name == "" {
				l.Name = DefaultListName
			}
		}
		if req.Notes != nil {
			l.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.IsActive != nil {
			l.IsActive = *req.IsActive
		}
		if req.ShoppingDate != nil {
			l.ShoppingDate = nil
			if *req.ShoppingDate != "" {
				d, _ := weekdate.ParseDateKey(*req.ShoppingDate, time.UTC)
				l.ShoppingDate = &d
			}
		}
		if req.Items != nil {
			items := make([]storage.GroceryItem, 0, len(*req.Items))
			for _, in := range *req.Items {
				var item storage.GroceryItem
				in.apply(&item)
				items = append(items, item)
			}
			l.Items = items
		}
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("grocery list %s not found", id)
		}
		return fmt.Errorf("failed to delete grocery list: %w", err)
	}
	return nil
}

// UpdateItem changes the set fields of one item.
func (s *Service) UpdateItem(ctx context.Context, userID, id, itemID string, in ItemInput) (storage.GroceryList, error) {
	var v apperr.Validator
	in.validate(&v, "", false)
	if err := v.Err(); err != nil {
		return storage.GroceryList{}, err
	}
	return s.modify(ctx, userID, id, func(l *storage.GroceryList) error {
		for i := range l.Items {
			if l.Items[i].ID == itemID {
				in.apply(&l.Items[i])
				return nil
			}
		}
		return apperr.NotFound("item %s not found", itemID)
	})
}

func (s *Service) AddItem(ctx context.Context, userID, id string, in ItemInput) (storage.GroceryList, error) {
	var v apperr.Validator
	in.validate(&v, "", true)
	if err := v.Err(); err != nil {
		return storage.GroceryList{}, err
	}
	return s.modify(ctx, userID, id, func(l *storage.GroceryList) error {
		var item storage.GroceryItem
		in.apply(&item)
		l.Items = append(l.Items, item)
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, id, itemID string) (storage.GroceryList, error) {
	return s.modify(ctx, userID, id, func(l *storage.GroceryList) error {
		for i := range l.Items {
			if l.Items[i].ID == itemID {
				l.Items = append(l.Items[:i], l.Items[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("item %s not found", itemID)
	})
}

// CheckAll sets every item to checked.
func (s *Service) CheckAll(ctx context.Context, userID, id string, checked bool) (storage.GroceryList, error) {
	return s.modify(ctx, userID, id, func(l *storage.GroceryList) error {
		for i := range l.Items {
			l.Items[i].IsChecked = checked
		}
		return nil
	})
}

// DeleteAllForUser removes every list of userID.
func (s *Service) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete grocery lists: %w", err)
	}
	return nil
}

func (s *Service) create(ctx context.Context, list *storage.GroceryList) error {
	list.TotalEstimatedCost = TotalCost(list.Items)
	if err := s.store.Create(ctx, list); err != nil {
		return fmt.Errorf("failed to create grocery list: %w", err)
	}
	return nil
}

func (s *Service) modify(ctx context.Context, userID, id string, fn func(l *storage.GroceryList) error) (storage.GroceryList, error) {
	l, err := s.Get(ctx, userID, id)
	if err != nil {
		return storage.GroceryList{}, err
	}
	if err := fn(&l); err != nil {
		return storage.GroceryList{}, err
	}
	l.TotalEstimatedCost = TotalCost(l.Items)
	if err := s.store.Update(ctx, &l); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.GroceryList{}, apperr.NotFound("grocery list %s not found", id)
		}
		return storage.GroceryList{}, fmt.Errorf("failed to update grocery list: %w", err)
	}
	return l, nil
}

// TotalCost sums item estimates; missing estimates count as zero.
func TotalCost(items []storage.GroceryItem) float64 {
	var total float64
	for _, it := range items {
		if it.EstimatedCost > 0 {
			total += it.EstimatedCost
		}
	}
	return total
}
