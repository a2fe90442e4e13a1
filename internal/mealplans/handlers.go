package mealplans

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/userctx"
	"github.com/fdg312/meal-planner/internal/weekdate"
	"github.com/sirupsen/logrus"
)

// Handler handles HTTP requests for meal plans.
type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

// NewHandler creates a new meal plans handler.
func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleGetWeek handles GET /v1/meal-plans/week?date=YYYY-MM-DD
func (h *Handler) HandleGetWeek(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	if date == nil {
		today := h.service.Today()
		date = &today
	}

	week, err := h.service.GetWeek(r.Context(), userID, *date)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// HandleAddMeal handles POST /v1/meal-plans/meals
func (h *Handler) HandleAddMeal(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req AddMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	entry, plan, err := h.service.AddMeal(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}

	dto := ToDTO(plan)
	var meal MealEntryDTO
	for _, m := range dto.Meals {
		if m.Date == entry.DateKey && m.MealType == entry.MealType {
			meal = m
		}
	}
	writeJSON(w, http.StatusCreated, AddMealResponse{
		Message:  fmt.Sprintf("%s added to %s on %s", entry.Snapshot.Title, entry.MealType, entry.DateKey),
		Meal:     meal,
		MealPlan: dto,
	})
}

// HandleRemoveMeal handles DELETE /v1/meal-plans/meals?date=&meal_type=
func (h *Handler) HandleRemoveMeal(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	req := MealSlotRequest{
		Date:     r.URL.Query().Get("date"),
		MealType: r.URL.Query().Get("meal_type"),
	}

	plan, err := h.service.RemoveMeal(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(plan))
}

// HandleSetCompleted handles PATCH /v1/meal-plans/meals/completed
func (h *Handler) HandleSetCompleted(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req SetCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	plan, err := h.service.SetMealCompleted(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(plan))
}

// HandleGroceryList handles GET /v1/meal-plans/grocery-list?start=&end=
func (h *Handler) HandleGroceryList(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	start, ok := h.dateParam(w, r, "start")
	if !ok {
		return
	}
	end, ok := h.dateParam(w, r, "end")
	if !ok {
		return
	}
	if start == nil {
		ws := weekdate.WeekStart(h.service.Today())
		start = &ws
	}

	resp, err := h.service.GroceryListForRange(r.Context(), userID, *start, end)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleList handles GET /v1/meal-plans?is_active=&limit=&offset=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	q := r.URL.Query()

	var isActive *bool
	if v := q.Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			apperr.WriteError(w, http.StatusBadRequest, "validation_error", "is_active must be true or false")
			return
		}
		isActive = &b
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	resp, err := h.service.List(r.Context(), userID, isActive, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /v1/meal-plans/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	plan, err := h.service.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(plan))
}

// HandleUpdate handles PATCH /v1/meal-plans/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req UpdatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	plan, err := h.service.Update(r.Context(), userID, r.PathValue("id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(plan))
}

// HandleDelete handles DELETE /v1/meal-plans/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	if err := h.service.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dateParam parses an optional YYYY-MM-DD query parameter. It writes the error
// response itself and returns ok=false on bad input.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	d, err := weekdate.ParseDateKey(v, h.service.Location())
	if err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "validation_error", name+" must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.KindOf(err) == "" {
		h.log.WithError(err).Error("mealplans: unexpected error")
	}
	apperr.Write(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
