package auth

import (
	"encoding/json"
	"net/http"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	service *Service
	log     logrus.FieldLogger
}

func NewHandlers(service *Service, log logrus.FieldLogger) *Handlers {
	return &Handlers{service: service, log: log}
}

// HandleRegister handles POST /v1/auth/register
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	resp, err := h.service.Register(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /v1/auth/login
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDevAuth handles POST /v1/auth/dev
func (h *Handlers) HandleDevAuth(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SignInDev(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	if apperr.KindOf(err) == "" {
		h.log.WithError(err).Error("auth: unexpected error")
	}
	apperr.Write(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
