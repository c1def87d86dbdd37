package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/packwise/internal/packing"
)

// CatalogHandler serves categories and master items.
type CatalogHandler struct {
	svc    *packing.Service
	logger *slog.Logger
}

func NewCatalogHandler(svc *packing.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, logger: logger}
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Position *int   `json:"position" validate:"omitempty,min=0"`
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	cats, err := h.svc.ListCategories(r.Context(), ac, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), ac, familyID, req.Name, req.Position)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	c, err := h.svc.UpdateCategory(r.Context(), caller(r), id, req.Name, req.Position)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := h.svc.DeleteCategory(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusOK, nil, out)
}

type itemRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	CategoryID *int64 `json:"category_id" validate:"omitempty,gt=0"`
}

func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, err := h.svc.ListItems(r.Context(), ac, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	item, err := h.svc.GetItem(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *CatalogHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req itemRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	item, out, err := h.svc.CreateItem(r.Context(), ac, familyID, req.Name, req.CategoryID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusCreated, map[string]any{"item": item}, out)
}

func (h *CatalogHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req itemRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	item, out, err := h.svc.UpdateItem(r.Context(), caller(r), id, req.Name, req.CategoryID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusOK, map[string]any{"item": item}, out)
}

func (h *CatalogHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.DeleteItem(r.Context(), caller(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
