package grocery

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/storage"
	"github.com/fdg312/meal-planner/internal/weekdate"
)

type ItemDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Amount        string  `json:"amount,omitempty"`
	Unit          string  `json:"unit,omitempty"`
	Category      string  `json:"category"`
	IsChecked     bool    `json:"is_checked"`
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

type ListDTO struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	MealPlanID         *string   `json:"meal_plan_id,omitempty"`
	Items              []ItemDTO `json:"items"`
	TotalEstimatedCost float64   `json:"total_estimated_cost"`
	CheckedCount       int       `json:"checked_count"`
	IsActive           bool      `json:"is_active"`
	Notes              string    `json:"notes,omitempty"`
	ShoppingDate       *string   `json:"shopping_date,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func ToDTO(l storage.GroceryList) ListDTO {
	items := make([]ItemDTO, len(l.Items))
	checked := 0
	for i, it := range l.Items {
		items[i] = ItemDTO{
			ID:            it.ID,
			Name:          it.Name,
			Amount:        it.Amount,
			Unit:          it.Unit,
			Category:      it.Category,
			IsChecked:     it.IsChecked,
			EstimatedCost: it.EstimatedCost,
		}
		if it.IsChecked {
			checked++
		}
	}
	var shopping *string
	if l.ShoppingDate != nil {
		k := weekdate.DateKey(*l.ShoppingDate)
		shopping = &k
	}
	return ListDTO{
		ID:                 l.ID,
		UserID:             l.UserID,
		Name:               l.Name,
		MealPlanID:         l.MealPlanID,
		Items:              items,
		TotalEstimatedCost: l.TotalEstimatedCost,
		CheckedCount:       checked,
		IsActive:           l.IsActive,
		Notes:              l.Notes,
		ShoppingDate:       shopping,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ListResponse struct {
	GroceryLists []ListDTO  `json:"grocery_lists"`
	Pagination   Pagination `json:"pagination"`
}

// ItemInput is an item as sent by clients. Nil fields are left untouched on update.
type ItemInput struct {
	Name          *string  `json:"name"`
	Amount        *string  `json:"amount"`
	Unit          *string  `json:"unit"`
	Category      *string  `json:"category"`
	IsChecked     *bool    `json:"is_checked"`
	EstimatedCost *float64 `json:"estimated_cost"`
}

func (in *ItemInput) validate(v *apperr.Validator, prefix string, requireName bool) {
	if requireName || in.Name != nil {
		v.Check(in.Name != nil && strings.TrimSpace(*in.Name) != "", "%sname is required", prefix)
	}
	if in.Category != nil && *in.Category != "" {
		v.Check(ValidCategory(*in.Category), "%scategory must be one of Produce, Dairy, Meat, Pantry, Frozen, Beverages, Other", prefix)
	}
	if in.EstimatedCost != nil {
		c := *in.EstimatedCost
		v.Check(c >= 0 && !math.IsNaN(c) && !math.IsInf(c, 0), "%sestimated_cost must be a non-negative number", prefix)
	}
}

// apply copies the set fields onto item.
func (in *ItemInput) apply(item *storage.GroceryItem) {
	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.Amount != nil {
		item.Amount = strings.TrimSpace(*in.Amount)
	}
	if in.Unit != nil {
		item.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.Category != nil {
		item.Category = *in.Category
	}
	if in.IsChecked != nil {
		item.IsChecked = *in.IsChecked
	}
	if in.EstimatedCost != nil {
		item.EstimatedCost = *in.EstimatedCost
	}
	if item.Category == "" {
		item.Category = CategoryOther
	}
}

type CreateListRequest struct {
	Name         string      `json:"name"`
	MealPlanID   *string     `json:"meal_plan_id"`
	Items        []ItemInput `json:"items"`
	Notes        string      `json:"notes"`
	ShoppingDate string      `json:"shopping_date"`
}

func (r *CreateListRequest) Validate() error {
	var v apperr.Validator
	v.Check(len(r.Name) <= 200, "name must be at most 200 characters")
	v.Check(len(r.Notes) <= 1000, "notes must be at most 1000 characters")
	if r.ShoppingDate != "" {
		_, err := weekdate.ParseDateKey(r.ShoppingDate, time.UTC)
		v.Check(err == nil, "shopping_date must be YYYY-MM-DD")
	}
	for i := range r.Items {
		r.Items[i].validate(&v, itemPrefix(i), true)
	}
	return v.Err()
}

type UpdateListRequest struct {
	Name         *string      `json:"name"`
	Items        *[]ItemInput `json:"items"`
	IsActive     *bool        `json:"is_active"`
	Notes        *string      `json:"notes"`
	ShoppingDate *string      `json:"shopping_date"`
}

func (r *UpdateListRequest) Validate() error {
	var v apperr.Validator
	v.Check(r.Name == nil || len(*r.Name) <= 200, "name must be at most 200 characters")
	v.Check(r.Notes == nil || len(*r.Notes) <= 1000, "notes must be at most 1000 characters")
	if r.ShoppingDate != nil && *r.ShoppingDate != "" {
		_, err := weekdate.ParseDateKey(*r.ShoppingDate, time.UTC)
		v.Check(err == nil, "shopping_date must be YYYY-MM-DD")
	}
	if r.Items != nil {
		for i := range *r.Items {
			(*r.Items)[i].validate(&v, itemPrefix(i), true)
		}
	}
	return v.Err()
}

type GenerateRequest struct {
	MealPlanID string `json:"meal_plan_id"`
	Name       string `json:"name"`
}

// PreviewRequest carries a raw weekly structure; nothing is persisted.
type PreviewRequest struct {
	WeekData WeeklyStructure `json:"week_data"`
}

type PreviewResponse struct {
	GroceryList []ItemDTO `json:"grocery_list"`
}

type CheckAllRequest struct {
	Checked bool `json:"checked"`
}

func itemPrefix(i int) string {
	return "items[" + strconv.Itoa(i) + "]."
}
