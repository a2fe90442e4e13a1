package users

import (
	"encoding/json"
	"net/http"

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

// HandleGetMe handles GET /v1/users/me
func (h *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(u))
}

// HandleUpdateMe handles PUT /v1/users/me
func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}
	u, err := h.service.Update(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(u))
}

// HandleChangePassword handles PUT /v1/users/me/password
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}
	if err := h.service.ChangePassword(r.Context(), userID, req); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// HandleDeleteMe handles DELETE /v1/users/me
func (h *Handler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	if err := h.service.Delete(r.Context(), userID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPublic handles GET /v1/users/{id}
func (h *Handler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToPublicDTO(u))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.KindOf(err) == "" {
		h.log.WithError(err).Error("users: unexpected error")
	}
	apperr.Write(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
