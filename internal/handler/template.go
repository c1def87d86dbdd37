package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/packing"
)

type TemplateHandler struct {
	svc    *packing.Service
	logger *slog.Logger
}

func NewTemplateHandler(svc *packing.Service, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{svc: svc, logger: logger}
}

type templateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ts, err := h.svc.ListTemplates(r.Context(), ac, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	t, err := h.svc.GetTemplate(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, familyID, err := scope(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req templateRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	t, err := h.svc.CreateTemplate(r.Context(), ac, familyID, req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req templateRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	t, err := h.svc.UpdateTemplate(r.Context(), caller(r), id, req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.DeleteTemplate(r.Context(), caller(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExpandedItems lists the live items the template currently yields.
func (h *TemplateHandler) ExpandedItems(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, err := h.svc.ExpandedItems(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TemplateHandler) SyncItems(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ItemIDs []int64 `json:"item_ids" validate:"required,dive,gt=0"`
	}
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	ids, out, err := h.svc.SyncTemplateItems(r.Context(), caller(r), id, req.ItemIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusOK, map[string]any{"item_ids": ids}, out)
}

func (h *TemplateHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, "item_id", h.svc.AddTemplateItem)
}

func (h *TemplateHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, "item_id", h.svc.RemoveTemplateItem)
}

func (h *TemplateHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, "category_id", h.svc.AddTemplateCategory)
}

func (h *TemplateHandler) RemoveCategory(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, "category_id", h.svc.RemoveTemplateCategory)
}

type linkFunc func(ctx context.Context, ac auth.AuthContext, templateID, targetID int64) (*packing.Outcome, error)

func (h *TemplateHandler) link(w http.ResponseWriter, r *http.Request, param string, fn linkFunc) {
	ids, ok := pathIDs(w, r, "id", param)
	if !ok {
		return
	}
	out, err := fn(r.Context(), caller(r), ids[0], ids[1])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeOutcome(w, http.StatusOK, nil, out)
}
