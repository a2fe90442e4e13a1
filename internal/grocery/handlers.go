package grocery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/userctx"
	"github.com/sirupsen/logrus"
)

// Handler handles HTTP requests for grocery lists and their exports.
type Handler struct {
	service  *Service
	exporter *Exporter
	log      logrus.FieldLogger
}

// NewHandler creates a new grocery handler.
func NewHandler(service *Service, exporter *Exporter, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, exporter: exporter, log: log}
}

// HandleList handles GET /v1/grocery-lists?is_active=&page=&limit=
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
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	resp, err := h.service.List(r.Context(), userID, isActive, page, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /v1/grocery-lists/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	list, err := h.service.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(list))
}

// HandleCreate handles POST /v1/grocery-lists
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req CreateListRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToDTO(list))
}

// HandleGenerate handles POST /v1/grocery-lists/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := h.service.GenerateFromMealPlan(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToDTO(list))
}

// HandlePreview handles POST /v1/grocery-lists/preview
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decode(w, r, &req) {
		return
	}
	items, err := h.service.GenerateFromWeek(req.WeekData)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{GroceryList: items})
}

// HandleUpdate handles PUT /v1/grocery-lists/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req UpdateListRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := h.service.Update(r.Context(), userID, r.PathValue("id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(list))
}

// HandleDelete handles DELETE /v1/grocery-lists/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	if err := h.service.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddItem handles POST /v1/grocery-lists/{id}/items
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var in ItemInput
	if !decode(w, r, &in) {
		return
	}
	list, err := h.service.AddItem(r.Context(), userID, r.PathValue("id"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToDTO(list))
}

// HandleUpdateItem handles PUT /v1/grocery-lists/{id}/items/{itemId}
func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var in ItemInput
	if !decode(w, r, &in) {
		return
	}
	list, err := h.service.UpdateItem(r.Context(), userID, r.PathValue("id"), r.PathValue("itemId"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(list))
}

// HandleRemoveItem handles DELETE /v1/grocery-lists/{id}/items/{itemId}
func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	list, err := h.service.RemoveItem(r.Context(), userID, r.PathValue("id"), r.PathValue("itemId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(list))
}

// HandleCheckAll handles PUT /v1/grocery-lists/{id}/check-all
func (h *Handler) HandleCheckAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req CheckAllRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := h.service.CheckAll(r.Context(), userID, r.PathValue("id"), req.Checked)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDTO(list))
}

// HandleCreateExport handles POST /v1/grocery-exports
func (h *Handler) HandleCreateExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())

	var req CreateExportRequest
	if !decode(w, r, &req) {
		return
	}
	export, err := h.exporter.CreateExport(r.Context(), userID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToExportDTO(export, baseURL(r)))
}

// HandleListExports handles GET /v1/grocery-exports?limit=&offset=
func (h *Handler) HandleListExports(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	exports, err := h.exporter.ListExports(r.Context(), userID, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	base := baseURL(r)
	dtos := make([]ExportDTO, len(exports))
	for i, e := range exports {
		dtos[i] = ToExportDTO(e, base)
	}
	writeJSON(w, http.StatusOK, ExportsResponse{Exports: dtos})
}

// HandleGetExport handles GET /v1/grocery-exports/{id}
func (h *Handler) HandleGetExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	export, err := h.exporter.GetExport(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToExportDTO(export, baseURL(r)))
}

// HandleDownloadExport handles GET /v1/grocery-exports/{id}/download
func (h *Handler) HandleDownloadExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	dl, err := h.exporter.DownloadExport(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}

	if dl.RedirectURL != "" {
		http.Redirect(w, r, dl.RedirectURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Write(dl.Data)
}

// HandleDeleteExport handles DELETE /v1/grocery-exports/{id}
func (h *Handler) HandleDeleteExport(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.GetUserID(r.Context())
	if err := h.exporter.DeleteExport(r.Context(), userID, r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.KindOf(err) == "" {
		h.log.WithError(err).Error("grocery: unexpected error")
	}
	apperr.Write(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apperr.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return false
	}
	return true
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
